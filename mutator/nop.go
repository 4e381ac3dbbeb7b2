package mutator

import "mreplay/session"

// Nop is the identity mutator.
type Nop struct{}

func (Nop) Start(*Env) {}

func (Nop) Process(in <-chan *session.Event) <-chan *session.Event { return in }
