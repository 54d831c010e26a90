package discovery

import (
	"fmt"
	"strings"

	"github.com/sells-group/court-inventory/internal/model"
)

const extractSystemPrompt = `You extract court records from the text of official court directory pages.

Identify every court mentioned on the page. For each court report:
- name: the full official court name
- type: the court type as written or clearly implied (for example "District Courts", "State Trial Courts")
- jurisdiction: the jurisdiction the court serves (a state, county or city name; "United States" for federal courts)
- jurisdiction_type: one of federal, state, county, municipal, tribal
- address: street address, or null
- url: the court's own web page, or null
- status: Open, Closed or Limited Operations when the page says so, otherwise null
- contact_info: {"phone", "email", "hours"}, each a string or null
- divisions: list of divisions or departments
- services: list of services offered

Only report courts. Skip clerks' offices, bar associations, law libraries and other non-court entities.
Respond with a single JSON object and nothing else:
{"courts": [ ... ]}`

const sourcesSystemPrompt = `You are an expert on the official websites of United States courts.

List the official web pages that publish a directory of courts for the requested jurisdiction: court locator pages, "find a court" tools, judicial branch directories. Prefer .gov and uscourts.gov hosts. Do not invent URLs; omit anything you are not confident exists.

For each page report:
- url: absolute https URL
- jurisdiction_name: the jurisdiction the directory covers
- jurisdiction_type: one of federal, state, county, municipal, tribal
- source_type: "directory" for a listing of many courts, "court" for a single court's site

Respond with a single JSON object and nothing else:
{"sources": [ ... ]}`

// verifySystemPrompt builds the verification prompt for the given type
// taxonomy. The text is stable for a run so it is sent as a cached block.
func verifySystemPrompt(courtTypes []string) string {
	var b strings.Builder
	b.WriteString("You verify court records extracted from official court directory pages.\n\n")
	b.WriteString("For the court described by the user:\n")
	b.WriteString("1. Decide whether it is a real, currently existing court.\n")
	b.WriteString("2. Classify it into exactly one of these court types:\n")
	for _, t := range courtTypes {
		fmt.Fprintf(&b, "   - %s\n", t)
	}
	b.WriteString("3. Give a confidence score between 0 and 1 for the record as a whole.\n")
	b.WriteString("4. Confirm or correct the street address.\n")
	statuses := make([]string, 0, 3)
	for _, s := range model.CourtStatuses() {
		statuses = append(statuses, string(s))
	}
	fmt.Fprintf(&b, "5. Determine the operating status: one of %s.\n", strings.Join(statuses, ", "))
	b.WriteString("6. Report contact details and opening hours if known.\n")
	b.WriteString("7. Report any announced closure or maintenance notice with its start and end dates (YYYY-MM-DD).\n\n")
	b.WriteString(`Respond with a single JSON object and nothing else:
{
  "verified": boolean,
  "confidence": number,
  "court_type": string,
  "status": string,
  "address": string or null,
  "contact_info": {"phone": string or null, "email": string or null, "hours": string or null},
  "maintenance_notice": string or null,
  "maintenance_start": string or null,
  "maintenance_end": string or null,
  "additional_info": string or null
}`)
	return b.String()
}

func extractUserPrompt(sourceURL, chunk string) string {
	return fmt.Sprintf("Source page: %s\n\nExtract court information from this page content:\n\n%s", sourceURL, chunk)
}

func verifyUserPrompt(payload []byte) string {
	return fmt.Sprintf("Verify this court information:\n%s", payload)
}

func sourcesUserPrompt(j model.Jurisdiction) string {
	return fmt.Sprintf("List official court directory pages for the %s jurisdiction %q.", j.Type, j.Name)
}
