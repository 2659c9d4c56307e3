package drug_extractor

import (
	"regexp"
	"strings"

	"github.com/turtacn/livecare/internal/domain/drug"
)

// ingredientPattern matches one MATERIAL_NAME segment. The trailing pipe is
// optional so a segment that ends on its unit still parses.
var ingredientPattern = regexp.MustCompile(`총량 : (.+?)\|성분명 : (.+?)\|분량 : (.+?)\|단위 : (.+?)(\||$)`)

// ParseIngredients parses the registry MATERIAL_NAME field into a map keyed
// by dosage layer. The layer is the text before 중 in the total field, or
// drug.DefaultLayer when there is none. Later segments with the same layer
// replace earlier ones; segments that do not match are skipped.
//
//	"총량 : 1정 중|성분명 : 아세트아미노펜|분량 : 500|단위 : mg|"
//	→ {"1정": {성분명: 아세트아미노펜, 분량: "500 mg"}}
func ParseIngredients(raw string) drug.Ingredients {
	out := drug.Ingredients{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	for _, segment := range strings.Split(raw, ";") {
		m := ingredientPattern.FindStringSubmatch(segment)
		if m == nil {
			continue
		}
		total, name, amount, unit := m[1], m[2], m[3], m[4]
		layer := drug.DefaultLayer
		if i := strings.Index(total, "중"); i >= 0 {
			layer = strings.TrimSpace(total[:i])
		}
		out[layer] = drug.Ingredient{
			Name:   name,
			Amount: amount + " " + unit,
		}
	}
	return out
}
