package graph

// Balance closes a loop: its output is a slack variable that the solver
// adjusts until the computed value fed back to its input equals it.
type Balance struct {
	name  string
	slack string
	value string
	unit  string
	guess float64

	hValue Handle
	hSlack Handle
}

// NewBalance returns a balance whose output slack is driven to equal input
// value. Both are scalars in unit; guess is the initial slack.
func NewBalance(name, slack, value, unit string, guess float64) *Balance {
	return &Balance{name: name, slack: slack, value: value, unit: unit, guess: guess}
}

func (b *Balance) GetName() string { return b.name }
func (b *Balance) GetType() string { return "balance" }

func (b *Balance) Setup(d *Declarer) error {
	b.hValue = d.Input(b.value, b.unit, Desc("value computed around the loop"))
	b.hSlack = d.Output(b.slack, b.unit, Default(b.guess), Desc("loop slack"))
	return nil
}

func (b *Balance) Residual(in, states, res Vector) error {
	res.Set(b.hSlack, in.Get(b.hValue)-states.Get(b.hSlack))
	return nil
}
