package derive

import (
	"fmt"
	"strings"
)

func itemsPrompt(query string) string {
	return strings.TrimSpace(fmt.Sprintf(`
List the data items about a company's profile that the following request asks for: '%s'.
Keep each data item short (a few words, such as "Headquarters" or "Funding").
Return ONLY a JSON object of the form {"data_items": ["first data item", "second data item"]}.
If the request does not ask for any data item, return {"data_items": []}.
`, query))
}

func descriptionPrompt(name string) string {
	return strings.TrimSpace(fmt.Sprintf(`
Explain what we are looking for when we ask for the %s of a company.
Answer with a single sentence directive describing the information to collect.
`, name))
}

func kindPrompt(name, description string) string {
	return strings.TrimSpace(fmt.Sprintf(`
When looking for the %s of a company (%s), would this piece of information normally be a:
- Link (such as website)
- Financial figure/Monetary Value (such as revenue)
- Numerical Amount (such as FTE)
- Binary answer (Yes or No answer)
- Date Information (such as when company was founded)
- Geographical Location (such as headquarter location)
- Piece of text (such as additional information or someone's full name)
Answer with the matching option only.
`, name, description))
}

func facetsPrompt(name string) string {
	return strings.TrimSpace(fmt.Sprintf(`
A user wants to know about the following data item of a company: %s.
List two to three key pieces of information needed to understand this data item.
Return ONLY a JSON object of the form {"data_item": "...", "key_information": ["...", "..."]}.

Examples:
Headquarters -> city, country, address
Funding -> value, currency, date
Investors -> number of investors, investor stage, investor type
Contact -> name, position, linkedin profile
Main employees -> name, position
`, name))
}
