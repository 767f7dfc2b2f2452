package mathexpr

import "sort"

// greekLetterNamesToSymbols maps the spelled-out greek letter names accepted
// as variables to their symbols.
var greekLetterNamesToSymbols = map[string]string{
	"alpha":   "α",
	"beta":    "β",
	"gamma":   "γ",
	"delta":   "δ",
	"epsilon": "ε",
	"zeta":    "ζ",
	"eta":     "η",
	"theta":   "θ",
	"iota":    "ι",
	"kappa":   "κ",
	"lambda":  "λ",
	"mu":      "μ",
	"nu":      "ν",
	"xi":      "ξ",
	"pi":      "π",
	"rho":     "ρ",
	"sigma":   "σ",
	"tau":     "τ",
	"upsilon": "υ",
	"phi":     "φ",
	"chi":     "χ",
	"psi":     "ψ",
	"omega":   "ω",
	"Gamma":   "Γ",
	"Delta":   "Δ",
	"Theta":   "Θ",
	"Lambda":  "Λ",
	"Xi":      "Ξ",
	"Pi":      "Π",
	"Sigma":   "Σ",
	"Phi":     "Φ",
	"Psi":     "Ψ",
	"Omega":   "Ω",
}

var greekSymbolsToNames = func() map[string]string {
	m := make(map[string]string, len(greekLetterNamesToSymbols))
	for name, sym := range greekLetterNamesToSymbols {
		m[sym] = name
	}
	return m
}()

// greekNamesLongestFirst is used by the tokenizer so "theta" wins over "eta".
var greekNamesLongestFirst = longestFirst(greekLetterNamesToSymbols)

// GreekSymbol returns the symbol for a spelled-out greek letter name.
func GreekSymbol(name string) (string, bool) {
	sym, ok := greekLetterNamesToSymbols[name]
	return sym, ok
}

// GreekLetterNamesToSymbols returns a copy of the name-to-symbol table.
func GreekLetterNamesToSymbols() map[string]string {
	out := make(map[string]string, len(greekLetterNamesToSymbols))
	for k, v := range greekLetterNamesToSymbols {
		out[k] = v
	}
	return out
}

func longestFirst(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
