// Package extractor turns normalized newsletter text into a validated gist
// record.
//
// The extraction backend is asked for JSON constrained by a schema derived
// from the output struct. The answer is validated (required fields, score
// range, link shapes) and the call is repeated once on any failure. When the
// second attempt fails too, Extract builds a degraded record from the
// message metadata so the item still surfaces downstream.
//
// Prompts are read from files with built-in defaults and can be reloaded at
// runtime. A user prompt is either a text/template using {{.Content}},
// {{.Sender}}, {{.Subject}} and {{.Date}}, or a plain text file using the
// {email_content}, {sender}, {subject} and {date} placeholders.
package extractor
