package events

// Subject names for the event mesh. The convention is
// <namespace>.<module>.<event-type> with "evt" as the namespace for
// pipeline events. These are append-only: removing or renaming one is a
// breaking change for every durable consumer bound to it.
const (
	// SubjectInputReceived carries InputReceived payloads. This is the
	// originating event of the pipeline; it mints the input_id that every
	// downstream payload carries.
	SubjectInputReceived = "evt.input.received"

	// SubjectMemoryRetrieved carries MemoryRetrieved payloads published by
	// memory agents after a context lookup.
	SubjectMemoryRetrieved = "evt.memory.retrieved"

	// SubjectResponseGenerated carries ResponseGenerated payloads published
	// by LLM agents.
	SubjectResponseGenerated = "evt.llm.response_generated"

	// SubjectReminderTriggered carries ReminderTriggered payloads published
	// by the scheduler when a reminder comes due.
	SubjectReminderTriggered = "evt.reminder.triggered"

	// SubjectRewardRecorded carries RewardRecorded payloads published by the
	// reward agent's ledger.
	SubjectRewardRecorded = "evt.reward.recorded"

	// SubjectChatBot is the raw chat ingestion subject. Messages the bot
	// emits to the chat platform are mirrored here for the reward agent to
	// score. It lives outside the evt namespace because its payloads
	// originate outside the pipeline.
	SubjectChatBot = "chat.bot"
)

// StreamSubjects are the subject filters retained by the durable stream.
var StreamSubjects = []string{"evt.>", "chat.>"}
