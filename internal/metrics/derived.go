package metrics

import "github.com/san-kum/robustflow/internal/dynamo"

// Derived publishes a secondary statistic of another metric under its own
// name. It observes nothing itself, so the source must be registered too.
type Derived struct {
	name  string
	value func() float64
}

func NewDerived(name string, value func() float64) *Derived {
	return &Derived{name: name, value: value}
}

func (d *Derived) Name() string                     { return d.name }
func (d *Derived) Observe(x dynamo.State, t float64) {}
func (d *Derived) Value() float64                    { return d.value() }
func (d *Derived) Reset()                            {}
