package extract

const candidateShape = `{
  "title": "event title",` + candidateFields

const commandShape = `{
  "title": "name of the event to create, or of the existing event being changed",
  "newTitle": "the new name when the command renames an existing event, or null",` + candidateFields

const candidateFields = `
  "description": "description or summary if present, or null",
  "location": "location if mentioned, or null",
  "startDateTime": "ISO 8601 date-time if a specific time is known, or null",
  "endDateTime": "ISO 8601 date-time if the end is known, or null",
  "date": "YYYY-MM-DD if only a date is known, or null",
  "allDay": true or false,
  "confidence": 0.0 to 1.0,
  "needsClarification": true or false,
  "clarificationQuestions": ["question", ...] or []
}`

// freeformPrompt extracts an event from a pasted announcement (school notice, society
// circular, office memo, message from a friend).
const freeformPrompt = `You extract calendar event details from free text such as announcements, notices and messages.
Read the text below and return ONLY a JSON object with exactly this structure:

` + candidateShape + `

Rules:
1. When the text gives a date and a time, fill startDateTime and endDateTime as ISO 8601 (for example "2024-11-15T14:00:00") and set allDay to false.
2. When the text gives a date but no time, fill "date", leave startDateTime null and set allDay to true.
3. When the time is ambiguous or missing, set needsClarification to true and ask about it in clarificationQuestions.
4. Extract the location when one is mentioned.
5. Pick a meaningful title, not just "Meeting" or "Event".
6. Confidence: 0.9 or higher for clear details, 0.5 to 0.8 for partial details, below 0.5 when unclear.
7. When the date, the time or a usable title is missing, set needsClarification to true.

Current date context: %s%s

Text to analyze:
%s

Return ONLY the JSON object, no other text:`

// commandPrompt interprets a short chat command ("lunch with Sam tomorrow at noon",
// "move the dentist to Friday").
const commandPrompt = `You turn natural language chat commands into calendar event details.
Read the command below and return ONLY a JSON object with exactly this structure:

` + commandShape + `

Rules:
1. Resolve relative dates such as "tomorrow", "next week" or "Monday" against the current date context.
2. Understand times written as "3pm", "15:00" or "3:00 PM".
3. When a duration is given ("1 hour", "2 hours"), compute endDateTime from it.
4. When the time is missing, set needsClarification to true, unless the command clearly describes an all-day event, in which case fill "date" and set allDay to true.
5. Take the title from the command. For a change request, use the name of the event being changed as the title. When the command renames that event ("rename the standup to Retro"), put the new name in "newTitle"; otherwise set "newTitle" to null.
6. Set confidence according to how clear the command is.
7. When anything is ambiguous, add clarification questions.

Current date context: %s%s

Command: %s

Return ONLY the JSON object, no other text:`
