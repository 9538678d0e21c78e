package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// Ensure API keys are loaded
	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/mycelia/agent"
	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/graph"
	"github.com/casualjim/mycelia/memory"
	"github.com/casualjim/mycelia/pkg/natsx"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/casualjim/mycelia/pkg/uuidx"
	"github.com/casualjim/mycelia/provider"
	"github.com/casualjim/mycelia/provider/openai"
	"github.com/casualjim/mycelia/scheduler"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("mycelia exited")
	}
}

func run(ctx context.Context) error {
	broker, cleanup := connectBroker()
	defer cleanup()

	dbPath := os.Getenv("MYCELIA_DB")
	if dbPath == "" {
		dbPath = "mycelia.db"
	}
	store, err := graph.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open fact graph: %w", err)
	}
	defer store.Close()

	recaller, err := memory.NewTiered(memory.NewInMem(nil), store)
	if err != nil {
		return err
	}

	generator := buildGenerator()

	memoryAgent := agent.NewMemory(broker, recaller)
	if !memoryAgent.Start(ctx, "memory_listener") {
		return fmt.Errorf("memory agent failed to start")
	}
	defer memoryAgent.Stop()

	llmAgent, err := agent.NewLLM(broker, generator)
	if err != nil {
		return err
	}
	if !llmAgent.Start(ctx, "llm_listener") {
		return fmt.Errorf("llm agent failed to start")
	}
	defer llmAgent.Stop()

	glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return err
	}
	responses := make(chan string, 16)
	outputAgent, err := agent.NewOutput(broker, agent.OnResponse(func(_, response string) {
		rendered, rerr := glam.Render(response)
		if rerr != nil {
			rendered = response
		}
		responses <- strings.TrimSpace(rendered)
	}))
	if err != nil {
		return err
	}
	if !outputAgent.Start(ctx, "output_listener") {
		return fmt.Errorf("output agent failed to start")
	}
	defer outputAgent.Stop()

	var reactions agent.Reactions
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		reactions = agent.NewDiscordReactions(token)
	}
	rewardAgent, err := agent.NewReward(broker, nil, reactions)
	if err != nil {
		return err
	}
	if !rewardAgent.Start(ctx, "reward_listener") {
		slog.Warn("reward agent failed to start, continuing without it")
	}
	defer rewardAgent.Stop()

	sched, err := scheduler.New(broker, store, buildSummarizer(generator))
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	printReminders(ctx, broker)

	return repl(ctx, agent.NewInput(broker), sched, responses)
}

// connectBroker prefers JetStream and falls back to the in-process
// broker when no NATS server is reachable, so the binary still works
// offline.
func connectBroker() (bus.Broker, func()) {
	nc, err := natsx.NewClient()
	if err != nil {
		slog.Warn("no NATS server reachable, using in-process broker", slogx.Error(err))
		return bus.Local(), func() {}
	}
	js, err := natsx.EnsureStream(nc, natsx.DefaultStream, events.StreamSubjects)
	if err != nil {
		slog.Warn("jetstream unavailable, using in-process broker", slogx.Error(err))
		nc.Close()
		return bus.Local(), func() {}
	}
	broker, err := bus.JetStream(nc, js)
	if err != nil {
		slog.Warn("jetstream broker failed, using in-process broker", slogx.Error(err))
		nc.Close()
		return bus.Local(), func() {}
	}
	return broker, func() { _ = nc.Drain() }
}

func buildGenerator() provider.Generator {
	if os.Getenv("OPENAI_API_KEY") == "" {
		slog.Warn("OPENAI_API_KEY not set, responses will be canned")
		return provider.Static{}
	}
	return openai.New(os.Getenv("MYCELIA_MODEL"))
}

func buildSummarizer(g provider.Generator) scheduler.Summarizer {
	if _, ok := g.(provider.Static); ok {
		return scheduler.Truncate{}
	}
	return scheduler.FromGenerator(g)
}

// printReminders surfaces triggered reminders on the console.
func printReminders(ctx context.Context, broker bus.Broker) {
	sub := bus.NewSubscriber(broker)
	err := sub.Subscribe(ctx, events.SubjectReminderTriggered,
		bus.HandlerFor(func(_ context.Context, p events.ReminderTriggered, d bus.Delivery) error {
			fmt.Printf("\n%s: %s\n", color.YellowString("Reminder"), p.Message)
			return d.Ack()
		}),
		bus.WithDurable("console_reminders"),
	)
	if err != nil {
		slog.Warn("reminder console unavailable", slogx.Error(err))
	}
}

func repl(ctx context.Context, input *agent.Input, sched *scheduler.Scheduler, responses <-chan string) error {
	fmt.Println("Type a message, 'remind <duration> <message>' to schedule a reminder, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		case strings.HasPrefix(line, "remind "):
			scheduleFromLine(sched, strings.TrimPrefix(line, "remind "))
			continue
		}

		if _, err := input.Process(ctx, line); err != nil {
			log.Error().Err(err).Msg("failed to publish input")
			continue
		}

		select {
		case response := <-responses:
			fmt.Printf("%s: %s\n", color.MagentaString("Mycelia"), response)
		case <-time.After(30 * time.Second):
			fmt.Println("no response, is a server-side consumer stuck?")
		case <-ctx.Done():
			return nil
		}
	}
}

func scheduleFromLine(sched *scheduler.Scheduler, rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		fmt.Println("usage: remind <duration> <message>")
		return
	}
	d, err := time.ParseDuration(parts[0])
	if err != nil {
		fmt.Printf("bad duration %q: %v\n", parts[0], err)
		return
	}
	id := uuidx.NewString()
	sched.ScheduleReminder(parts[1], time.Now().UTC().Add(d), id)
	fmt.Printf("%s: reminder %s in %s\n", color.GreenString("Scheduled"), id, d)
}
