package expression

// Verdict is the result of applying a Rule to a response.
type Verdict int

const (
	// Undecided means neither expression matched.
	Undecided Verdict = iota
	// Succeeded means the success expression matched.
	Succeeded
	// Failed means the failure expression matched.
	Failed
)

// Rule classifies decoded responses with a pair of boolean expressions.
// The failure expression is checked first.
type Rule struct {
	Success string `yaml:"successExpr"`
	Failure string `yaml:"failureExpr"`
}

// IsZero reports whether neither expression is set.
func (r Rule) IsZero() bool {
	return r.Success == "" && r.Failure == ""
}

// Validate compiles both expressions.
func (r Rule) Validate(e *Evaluator) error {
	if err := e.Validate(r.Failure); err != nil {
		return err
	}
	return e.Validate(r.Success)
}

// Apply evaluates the rule against env. Unset expressions never match.
func (r Rule) Apply(e *Evaluator, env map[string]any) (Verdict, error) {
	if r.Failure != "" {
		failed, err := e.Evaluate(r.Failure, env)
		if err != nil {
			return Undecided, err
		}
		if failed {
			return Failed, nil
		}
	}
	if r.Success != "" {
		ok, err := e.Evaluate(r.Success, env)
		if err != nil {
			return Undecided, err
		}
		if ok {
			return Succeeded, nil
		}
	}
	return Undecided, nil
}
