package explorer

import (
	"context"
	"sort"
	"strings"

	"github.com/google/btree"

	"mreplay/config"
	"mreplay/diverge"
	cerrors "mreplay/errors"
	"mreplay/event"
	"mreplay/logging"
	"mreplay/mutator"
	"mreplay/replay"
	"mreplay/session"
	"mreplay/store"
)

// todoItem orders TODO executions for the scheduler's btree index: highest
// score first, ties broken by insertion (id) order (spec.md §4.2 "Select
// the TODO execution with the maximum score (ties broken by insertion
// order)").
type todoItem struct {
	score int64
	id    int
	exec  *Execution
}

func (a *todoItem) Less(than btree.Item) bool {
	b := than.(*todoItem)
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

// Explorer owns the flat Execution pool, the signature set, and the
// scheduling loop (spec.md §4.2).
type Explorer struct {
	cfg      config.Options
	store    *store.Store
	diverge  *diverge.Handler
	replayer *replay.Replayer

	executions []*Execution
	signatures map[string]bool
	todo       *btree.BTree
	nextExecID int

	root       *Execution
	numSuccess int
}

// New constructs an Explorer rooted at rootSession (the on-disk input log
// already loaded), backed by st's scratch directory and rp's replay glue.
func New(cfg config.Options, rootSession *session.Session, st *store.Store, rp *replay.Replayer) (*Explorer, error) {
	ex := &Explorer{
		cfg:        cfg,
		store:      st,
		diverge:    diverge.New(cfg.Pattern, cfg.MaxDelete, cfg.MaxOtf),
		replayer:   rp,
		signatures: make(map[string]bool),
		todo:       btree.New(32),
	}

	rootMutation, err := rootMutationFor(cfg, rootSession)
	if err != nil {
		return nil, err
	}
	root := newRoot(ex, rootMutation)
	root.session = rootSession
	ex.root = root
	ex.addExecution(nil, root)
	return ex, nil
}

// Root returns the Root Execution.
func (ex *Explorer) Root() *Execution { return ex.root }

// Executions returns every Execution created so far, in creation order.
func (ex *Explorer) Executions() []*Execution {
	return append([]*Execution(nil), ex.executions...)
}

// NumSuccess reports how many Executions have reached SUCCESS.
func (ex *Explorer) NumSuccess() int { return ex.numSuccess }

// rootMutationFor picks the Root Execution's base mutation: Nop normally,
// or SetFlagsInit when on_the_fly/var_io narrow the replay facility's
// negative flags (spec.md §4.2 "containing either a Nop or a SetFlagsInit
// depending on mode").
func rootMutationFor(cfg config.Options, sess *session.Session) (mutator.Mutator, error) {
	var negFlags uint32
	if cfg.OnTheFly {
		negFlags |= mutator.FlagStrictRpy
	}
	if cfg.VarIO {
		negFlags |= mutator.FlagFixedIO
	}
	if negFlags == 0 {
		return mutator.Nop{}, nil
	}
	first := sess.Events.At(0)
	return mutator.NewSetFlagsInit(first, mutator.FlagEnableAll&^negFlags)
}

func (ex *Explorer) nextID() int {
	id := ex.nextExecID
	ex.nextExecID++
	return id
}

// addExecution records child. A TODO child is rejected without ever being
// added to the execution pool if an equivalent signature was already added
// (the set keeps every TODO signature ever added, spec.md §4.2 "Adding a
// child").
func (ex *Explorer) addExecution(parent, child *Execution) {
	if child.state == StateTODO {
		key := signatureKey(child.Signature())
		if ex.signatures[key] {
			return
		}
		ex.signatures[key] = true
	}
	ex.executions = append(ex.executions, child)
	if child.state == StateTODO {
		ex.todo.ReplaceOrInsert(&todoItem{score: child.score, id: child.id, exec: child})
	}
}

// signatureKey canonicalises a signature's segment list by sorting the
// characters within each segment, so that "+-" and "-+" collapse to the
// same key (spec.md §4.2 "Signatures are compared as a list of per-segment
// multisets of operation characters").
func signatureKey(segments []string) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('|')
		}
		chars := []byte(seg)
		sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
		b.Write(chars)
	}
	return b.String()
}

// pipeline builds the lazy mutator chain from the root's session through
// every ancestor's mutation down to e, inclusive (spec.md §3's
// "mutated-session: event stream produced by piping parent through
// mutation").
func (e *Execution) pipeline() mutator.Mutator {
	if e.parent == nil {
		return mutator.Pipe(&mutator.CatSession{Session: e.session}, e.mutation)
	}
	return mutator.Pipe(e.parent.pipeline(), e.mutation)
}

// generateLog materialises e's on-disk log by streaming its pipeline
// through the base chain (spec.md §4.3 step 1: "parent.session | mutation |
// AdjustResources | InsertPidEvents | ToRawEvents"). Idempotent per
// execution.
func (e *Execution) generateLog(st *store.Store) error {
	if e.logPath != "" {
		return nil
	}
	full := mutator.PipeAll(e.pipeline(), mutator.AdjustResources{}, mutator.InsertPidEvents{}, mutator.ToRawEvents{})
	events := mutator.Run(full, mutator.NewEnv(), nil)
	raws := make([]*event.Raw, len(events))
	for i, ev := range events {
		raws[i] = ev.Raw
	}
	id := store.IDFromInt(e.id)
	if err := st.WriteLog(id, raws); err != nil {
		return err
	}
	e.logPath = st.Path(id)
	return nil
}

// loadSession returns e's materialised session, generating and reloading
// its on-disk log on first use.
func (e *Execution) loadSession(st *store.Store) (*session.Session, error) {
	if e.session != nil {
		return e.session, nil
	}
	if err := e.generateLog(st); err != nil {
		return nil, err
	}
	log, err := st.OpenLog(store.IDFromInt(e.id))
	if err != nil {
		return nil, err
	}
	raws, err := log.Events()
	log.Close()
	if err != nil {
		return nil, err
	}
	e.session = session.FromRawEvents(raws)
	return e.session, nil
}

// Run drives the scheduling loop of spec.md §4.2: repeatedly pick the
// highest-scoring TODO execution, replay it, and react to the outcome,
// until a terminal condition is met or ctx is cancelled (spec.md §5
// "Cancellation").
func (ex *Explorer) Run(ctx context.Context) error {
	numRun := 0
	for {
		if ex.cfg.NumSuccessToStop > 0 && ex.numSuccess >= ex.cfg.NumSuccessToStop {
			break
		}
		if ctx.Err() != nil {
			break
		}
		item := ex.todo.Min()
		if item == nil {
			break
		}
		ex.todo.DeleteMin()
		exec := item.(*todoItem).exec

		numRun++
		if err := ex.runOne(ctx, exec); err != nil {
			return err
		}
	}
	logging.InfoContext(ctx, "exploration finished",
		"replays", numRun, "success", ex.numSuccess, "failed", ex.count(StateFailed), "todo", ex.todo.Len())
	return nil
}

func (ex *Explorer) count(s State) int {
	n := 0
	for _, e := range ex.executions {
		if e.state == s {
			n++
		}
	}
	return n
}

// runOne replays a single execution and dispatches its outcome (spec.md
// §4.3 step 3, §7 "Partial-failure policy": any one execution failing
// never stops the explorer).
func (ex *Explorer) runOne(ctx context.Context, exec *Execution) error {
	exec.state = StateRunning
	if _, err := exec.loadSession(ex.store); err != nil {
		return err
	}
	if err := exec.generateLog(ex.store); err != nil {
		return err
	}

	result, diverged, err := ex.replayer.Run(ctx, exec.logPath)
	if err != nil {
		logging.ErrorContext(ctx, "unexpected replay error", "execution", exec.id, "error", err)
		exec.state = StateFailed
		return nil
	}

	switch result {
	case replay.ResultSuccess:
		exec.state = StateSuccess
		ex.numSuccess++
		logging.InfoContext(ctx, "success", "execution", exec.id, "score", exec.score)
	case replay.ResultDeadlock:
		exec.state = StateFailed
		logging.InfoContext(ctx, "deadlocked", "execution", exec.id)
	case replay.ResultContextClosed:
		exec.state = StateFailed
	case replay.ResultDiverged:
		if err := ex.handleDivergence(ctx, exec, diverged); err != nil {
			return err
		}
	}
	return nil
}

// handleDivergence converts a divergence report into new candidate
// Executions via the diverge handler (spec.md §4.4). This port's Driver
// contract has no live on-the-fly continuation channel (SPEC_FULL.md
// §4.3), so every divergence is treated as forcing a fresh on-disk child
// rather than continuing the running session in place: otfDepth is passed
// as cfg.MaxOtf+1 unconditionally, which pushes diverge.Handler's internal
// "todo" decision to always materialise (spec.md §4.4 "If on-the-fly depth
// exceeds max_otf... the system falls back to generating a new on-disk
// log").
func (ex *Explorer) handleDivergence(ctx context.Context, exec *Execution, d *replay.DivergeEvent) error {
	proc, ok := exec.runningSession().Processes[d.Pid]
	if !ok {
		return cerrors.New(cerrors.ErrInvalidState, "handle divergence", "unknown pid in divergence report")
	}

	culprit := diverge.CulpritIndex(d)
	exec.updateProgress(d.Pid, culprit)
	exec.state = StateFailed

	props, err := ex.diverge.Handle(proc, d, exec.depth, ex.cfg.MaxOtf+1)
	if err != nil {
		return err
	}
	for _, p := range props {
		child := exec.newChild(p, d.Pid, culprit+1)
		ex.addExecution(exec, child)
	}
	logging.InfoContext(ctx, "diverged", "execution", exec.id, "pid", d.Pid, "kind", d.Kind, "children", len(props))
	return nil
}
