package statemigration

import (
	"sort"

	"github.com/dyluth/quill/internal/blob"
	"github.com/dyluth/quill/internal/mathexpr"
	"go.uber.org/zap"
)

// v34 -> v35: MathExpressionInput is replaced by AlgebraicExpressionInput,
// NumericExpressionInput or MathEquationInput, depending on what its rule
// inputs turn out to be. If any rule input cannot be classified the state is
// left unchanged.
func (m *Migrator) convertV34ToV35(state map[string]any) error {
	interaction, id, hasID, err := interactionOf(state)
	if err != nil {
		return err
	}
	if !hasID || id != interactionMathExpressionInput {
		return nil
	}

	groups, err := blob.List(interaction, "answer_groups", "interaction")
	if err != nil {
		return err
	}

	seen := make(map[mathexpr.Kind]bool)
	newGroups := make([]map[string]any, 0, len(groups))
	for i, raw := range groups {
		path := blob.Index("interaction.answer_groups", i)
		group, err := blob.AsMap(raw, path)
		if err != nil {
			return err
		}
		newGroup := blob.DeepCopyMap(group)
		err = forEachRuleSpec(newGroup, path, func(spec map[string]any, specPath string) error {
			inputs, err := blob.Map(spec, "inputs", specPath)
			if err != nil {
				return err
			}
			x, err := blob.String(inputs, "x", blob.Join(specPath, "inputs"))
			if err != nil {
				return err
			}
			expr := m.expr.CleanMathExpression(m.expr.LatexToText(x))
			kind := m.classify(expr)
			seen[kind] = true
			if kind == mathexpr.KindInvalid {
				return nil
			}
			inputs["x"] = expr
			if kind == mathexpr.KindEquation {
				inputs["y"] = "both"
			}
			spec["rule_type"] = "MatchesExactlyWith"
			return nil
		})
		if err != nil {
			return err
		}
		newGroups = append(newGroups, newGroup)
	}

	if seen[mathexpr.KindInvalid] {
		m.logger.Warn("Leaving MathExpressionInput unconverted",
			zap.String("event_type", "math_interaction_unconverted"),
		)
		return nil
	}

	newID := interactionNumericExpression
	var keep func(string) bool
	switch {
	case seen[mathexpr.KindEquation]:
		newID = interactionMathEquation
		keep = m.expr.IsValidMathEquation
	case seen[mathexpr.KindAlgebraic]:
		newID = interactionAlgebraicExpression
		keep = m.expr.IsValidAlgebraicExpression
	}

	kept := make([]any, 0, len(newGroups))
	for i, group := range newGroups {
		if keep != nil {
			if err := filterRuleSpecs(group, blob.Index("interaction.answer_groups", i), keep); err != nil {
				return err
			}
		}
		specs, _ := group["rule_specs"].([]any)
		if len(specs) > 0 {
			kept = append(kept, group)
		}
	}

	oldIDs, err := groupFeedbackIDs(groups)
	if err != nil {
		return err
	}
	keptIDs, err := groupFeedbackIDs(kept)
	if err != nil {
		return err
	}
	if err := removeContentIDs(state, orphanedIDs(oldIDs, keptIDs)); err != nil {
		return err
	}

	interaction["answer_groups"] = kept
	interaction["id"] = newID

	if solution, ok := interaction["solution"].(map[string]any); ok && len(solution) > 0 {
		answer, err := blob.Map(solution, "correct_answer", "interaction.solution")
		if err != nil {
			return err
		}
		ascii, err := blob.String(answer, "ascii", "interaction.solution.correct_answer")
		if err != nil {
			return err
		}
		solution["correct_answer"] = m.expr.CleanMathExpression(ascii)
	}

	m.logger.Debug("Converted MathExpressionInput",
		zap.String("event_type", "math_interaction_converted"),
		zap.String("interaction_id", newID),
		zap.Int("answer_groups", len(kept)),
	)
	return nil
}

// classify tests algebraic before numeric before equation.
func (m *Migrator) classify(expr string) mathexpr.Kind {
	switch {
	case m.expr.IsValidAlgebraicExpression(expr):
		return mathexpr.KindAlgebraic
	case m.expr.IsValidNumericExpression(expr):
		return mathexpr.KindNumeric
	case m.expr.IsValidMathEquation(expr):
		return mathexpr.KindEquation
	default:
		return mathexpr.KindInvalid
	}
}

// filterRuleSpecs keeps only the rule specs whose inputs.x satisfies keep.
func filterRuleSpecs(group map[string]any, path string, keep func(string) bool) error {
	var filtered []any
	err := forEachRuleSpec(group, path, func(spec map[string]any, specPath string) error {
		inputs, err := blob.Map(spec, "inputs", specPath)
		if err != nil {
			return err
		}
		x, err := blob.String(inputs, "x", blob.Join(specPath, "inputs"))
		if err != nil {
			return err
		}
		if keep(x) {
			filtered = append(filtered, spec)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if filtered == nil {
		filtered = []any{}
	}
	group["rule_specs"] = filtered
	return nil
}

func groupFeedbackIDs(groups []any) ([]string, error) {
	ids := make([]string, 0, len(groups))
	for i, raw := range groups {
		path := blob.Index("interaction.answer_groups", i)
		group, err := blob.AsMap(raw, path)
		if err != nil {
			return nil, err
		}
		id, err := feedbackContentID(group, path)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// v37 -> v38: algebraic and equation inputs get a customOskLetters arg
// listing the variables their rules use, with greek letter names replaced
// by their symbols.
func (m *Migrator) convertV37ToV38(state map[string]any) error {
	interaction, id, hasID, err := interactionOf(state)
	if err != nil {
		return err
	}
	if !hasID || (id != interactionAlgebraicExpression && id != interactionMathEquation) {
		return nil
	}

	letters := make(map[string]bool)
	err = forEachAnswerGroup(interaction, func(group map[string]any, path string) error {
		return forEachRuleSpec(group, path, func(spec map[string]any, specPath string) error {
			inputs, err := blob.Map(spec, "inputs", specPath)
			if err != nil {
				return err
			}
			xPath := blob.Join(specPath, "inputs.x")
			x, err := blob.String(inputs, "x", blob.Join(specPath, "inputs"))
			if err != nil {
				return err
			}
			vars, err := m.expr.Variables(x)
			if err != nil {
				return blob.Malformed(xPath, "invalid math expression %q: %v", x, err)
			}
			for _, v := range vars {
				if symbol, ok := mathexpr.GreekSymbol(v); ok {
					v = symbol
				}
				letters[v] = true
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	sorted := make([]string, 0, len(letters))
	for l := range letters {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	value := make([]any, len(sorted))
	for i, l := range sorted {
		value[i] = l
	}

	args, err := customizationArgs(interaction)
	if err != nil {
		return err
	}
	args["customOskLetters"] = map[string]any{"value": value}
	return nil
}
