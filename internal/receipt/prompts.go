package receipt

import (
	"fmt"
	"strings"

	"scontrini/internal/core"
)

const extractionSystem = "You read shopping receipts. You MUST respond with ONLY a valid JSON array. " +
	"Do not include any explanatory text, markdown formatting, or commentary before or after the JSON."

const suggestionSystem = "You classify expenses. You MUST respond with ONLY a valid JSON object " +
	`of the form {"categoryId": "<id>"} or {"categoryId": null}.`

// ExtractionPrompt builds the instruction sent with the receipt file.
func ExtractionPrompt(categoryIDs []string) string {
	var b strings.Builder
	b.WriteString("Analyze the provided receipt image or PDF. Extract each line item, including its description and amount.\n\n")
	b.WriteString("For each item, suggest the most appropriate category ID based on the following rules and available categories.\n\n")
	fmt.Fprintf(&b, "Available Category IDs: %s\n\n", strings.Join(categoryIDs, ", "))
	b.WriteString(`Category Rules:
1. If the item comes from a grocery store or is a raw food ingredient (e.g., milk, eggs, flour, vegetables, meat), assign category ID: "grocery".
2. If the item is prepared food or drink from a restaurant, café, fast food, delivery service, etc. (e.g., pizza, latte, sandwich, meal combo), assign category ID: "outside-food".
3. For items like clothing, shoes, accessories, assign category ID: "clothing".
4. For items like computers, phones, TVs, gadgets, assign category ID: "electronics".
5. For books, magazines, newspapers, assign category ID: "books".
6. For hardware, tools, home improvement items, assign category ID: "tools".
7. For general merchandise not fitting other specific categories, assign category ID: "shopping".
8. If none of the above fit well, assign category ID: "other".

`)
	b.WriteString(`Return the results as a JSON array, where each object has "description" (string), "amount" (number) and "categoryId" (string) fields. `)
	b.WriteString(`Ensure the "categoryId" strictly matches one of the available IDs listed above. If the receipt has no line items, return [].`)
	return b.String()
}

// SuggestionPrompt builds the single-description classification prompt.
func SuggestionPrompt(description string, categories []core.Category) string {
	var b strings.Builder
	b.WriteString("Given the expense item description and a list of available categories, suggest the single most appropriate category ID.\n\n")
	b.WriteString("Available Categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- ID: %s, Name: %s\n", c.ID, c.Name)
	}
	fmt.Fprintf(&b, "\nExpense Description: %q\n\n", description)
	b.WriteString(`Category Rules:
1. If the item comes from a grocery store or is a raw food ingredient (e.g., milk, eggs, flour, vegetables, meat), strongly prefer category ID: "grocery".
2. If the item is prepared food or drink from a restaurant, café, fast food, delivery service, etc. (e.g., pizza, latte, sandwich, meal combo), strongly prefer category ID: "outside-food".
3. For items like clothing, shoes, accessories, prefer "clothing".
4. For items like computers, phones, TVs, gadgets, prefer "electronics".
5. For books, magazines, newspapers, prefer "books".
6. For hardware, tools, home improvement items, prefer "tools".
7. For general merchandise not fitting other specific categories (like from a department store or online marketplace), prefer "shopping".
8. For medical expenses, pharmacy items, doctor visits, prefer "health".
9. For transportation costs like gas, taxi, bus fare, prefer "transportation".
10. For housing costs like rent or mortgage, prefer "housing".
11. For utility bills like electricity, water, internet, prefer "utilities".
12. For entertainment like movies, concerts, games, prefer "entertainment".
13. If none of the above fit well or the description is ambiguous, return the ID for "other". If "other" is not available, return null.

`)
	b.WriteString(`Return ONLY {"categoryId": "<id>"} using one of the IDs above, or {"categoryId": null}.`)
	return b.String()
}
