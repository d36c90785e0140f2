package compliance

import (
	"fmt"
	"strings"
)

// DefaultBannedWords are terms that may not appear in merchant names or in
// text visible in merchant images
var DefaultBannedWords = []string{
	"Magic", "Magical", "Love", "Seduction", "Lucky", "Interest", "Credit",
	"Black Friday", "Christmas", "Diwali", "Disco", "Ballroom", "Bar",
	"Champagne", "Whisky", "Beer", "Radhe", "Krishna",
}

// RuleCategory groups what is permitted and prohibited for one theme
type RuleCategory struct {
	Name       string
	Permitted  []string
	Prohibited []string
}

// Rules is the compliance taxonomy the model is asked to apply
var Rules = []RuleCategory{
	{
		Name: "people",
		Permitted: []string{
			"men and women appropriately dressed with neutral expressions, with or without kids",
			"women with head cover in fully covered modest clothing (hijab, abaya)",
			"kids (boys and girls) in ordinary clothing",
		},
		Prohibited: []string{
			"women without head cover",
			"immodest attire, men in shorts or tank tops (gym clothing)",
			"kids in bathing suits",
			"photo frames or paintings showing women without head cover",
		},
	},
	{
		Name: "food and drink",
		Permitted: []string{
			"halal products and meat from halal restaurants",
			"non-alcoholic beverages",
			"restaurant tables with empty glasses used for water",
		},
		Prohibited: []string{
			"alcohol: wine, beer, champagne, cocktails, bottles, cans, filled wine or cocktail glasses",
			"ice buckets, bar racks or bar areas, syrup bottles or decor shaped like alcohol bottles",
			"pork meat or pork products",
		},
	},
	{
		Name: "places",
		Permitted: []string{
			"hospitality imagery with no humans or male-only customers and staff",
			"hotel or resort pools and beaches with no humans, waterparks without humans",
			"restaurants with a pool visible in the background",
			"cinema and art without banned imagery",
		},
		Prohibited: []string{
			"humans swimming or lounging in pools or on beaches",
			"bars and nightclubs",
			"graffiti, paintings, art or logos containing banned imagery",
		},
	},
	{
		Name: "services",
		Permitted: []string{
			"massage tables",
			"yoga or meditation without women",
		},
		Prohibited: []string{
			"spa and wellness services",
			"beauty salon services: haircut, facial, waxing, threading, nails, laser, cosmetic surgery",
			"gyms with humans working out",
		},
	},
	{
		Name: "other",
		Prohibited: []string{
			"gambling: casinos, playing cards, slot machines",
			"smoking: cigarettes, vapes, cigars, shisha",
			"drugs",
			"weapons",
			"musical instruments",
			"christmas trees, decorations, ornaments or any festive decoration, even in the background",
			"non-Islamic religious symbols: crosses, churches, temples, OM, trishul, Hindu deities, Buddhist symbols",
		},
	},
}

// BuildPrompt renders the instruction prompt for the given banned word list
func BuildPrompt(bannedWords []string) string {
	var sb strings.Builder
	sb.WriteString(`You are a Sharia compliance reviewer for an Islamic bank checking images that merchants supplied for promotion.
Inspect the entire image with the greatest scrutiny, including backgrounds, reflections and anything seen through glass.
Read ALL visible text: signs, banners, logos, awnings, menus and labels.
Do not assume a violation that you cannot see.

`)

	sb.WriteString("PROHIBITED (reject if any is present, even partially):\n")
	for _, cat := range Rules {
		for _, item := range cat.Prohibited {
			fmt.Fprintf(&sb, "- [%s] %s\n", cat.Name, item)
		}
	}
	if len(bannedWords) > 0 {
		fmt.Fprintf(&sb, "- [text] any of these banned words in visible text: %s\n", strings.Join(bannedWords, ", "))
	}

	sb.WriteString("\nPERMITTED:\n")
	for _, cat := range Rules {
		for _, item := range cat.Permitted {
			fmt.Fprintf(&sb, "- [%s] %s\n", cat.Name, item)
		}
	}

	sb.WriteString(`
Decide ACCEPT when nothing prohibited is visible, REJECT when something prohibited is visible,
and REVIEW when the image is unclear or you are unsure.

Respond with ONLY a JSON object in exactly this format:
{
  "status": "ACCEPT" or "REJECT" or "REVIEW",
  "confidence": "HIGH" or "MEDIUM" or "LOW",
  "reason": "one sentence explaining the decision",
  "violations_detected": ["short tags of every prohibited item found"]
}`)
	return sb.String()
}
