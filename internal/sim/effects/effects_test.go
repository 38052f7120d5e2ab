package effects

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kartetris.ai/internal/sim/figure"
	"kartetris.ai/internal/sim/game"
	"kartetris.ai/internal/sim/sched"
	"kartetris.ai/internal/sim/tuning"
)

type counters struct {
	lines  int
	frames int
}

func newEngine(t *testing.T) (*game.Engine, *sched.Manual, *counters) {
	t.Helper()
	m := sched.NewManual()
	c := &counters{}
	cfg := game.DefaultConfig()
	cfg.SpecialPermille = 0
	e := game.New(cfg, m, rand.New(rand.NewPCG(9, 9)), game.Hooks{
		DrawBoard:      func(game.Frame) { c.frames++ },
		DrawCurrent:    func(game.Frame) { c.frames++ },
		LinesCompleted: func(n int) { c.lines += n },
	})
	return e, m, c
}

func registry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(tuning.Defaults())
	require.NoError(t, err)
	return r
}

func TestRegistry_CatalogKeepsDuplicates(t *testing.T) {
	r := registry(t)
	require.Equal(t, []string{HalveGameSpeed, DoubleGameSpeed, ClearLine, HalveGameSpeed}, r.Names())

	e, ok := r.Lookup(AddLine)
	require.True(t, ok, "AddLine resolves even though it is not in the catalog")
	require.Equal(t, Debuff, e.Kind())

	_, ok = r.Lookup("Teleport")
	require.False(t, ok)
}

func TestRegistry_UnknownCatalogEntry(t *testing.T) {
	tu := tuning.Defaults()
	tu.Catalog = []string{"Teleport"}
	_, err := NewRegistry(tu)
	require.Error(t, err)
}

func TestSpeedEffects_RevertAfterDuration(t *testing.T) {
	r := registry(t)
	for _, tc := range []struct {
		name   string
		kind   Kind
		period time.Duration
	}{
		{HalveGameSpeed, Buff, 1000 * time.Millisecond},
		{DoubleGameSpeed, Debuff, 100 * time.Millisecond},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e, m, c := newEngine(t)
			eff, ok := r.Lookup(tc.name)
			require.True(t, ok)
			require.Equal(t, tc.kind, eff.Kind())
			require.Equal(t, 5*time.Second, eff.Duration())

			eff.Apply(e)
			m.Advance(5 * time.Second)
			require.Equal(t, int(5*time.Second/tc.period), c.frames, "one tick per effect period")
			require.Equal(t, 1, m.Pending(), "only the restored gravity task remains")

			c.frames = 0
			m.Advance(2 * time.Second)
			require.Equal(t, 4, c.frames, "normal gravity restored")
		})
	}
}

func TestClearLine_RemovesLowestNonEmptyRow(t *testing.T) {
	r := registry(t)
	e, _, c := newEngine(t)
	b := e.Board()
	b.Lock(figure.FromShape(figure.Shape{{1, 1}}, "#fff", figure.Position{X: 0, Y: 17}, 10))

	eff, _ := r.Lookup(ClearLine)
	eff.Apply(e)

	require.Equal(t, 1, c.lines)
	require.Equal(t, 0, b.Count())
	require.Equal(t, 1, e.Step())
}

func TestAddLine_ShiftsBoardUp(t *testing.T) {
	r := registry(t)
	e, _, _ := newEngine(t)
	b := e.Board()
	b.Lock(figure.FromShape(figure.Shape{{1}}, "#fff", figure.Position{X: 3, Y: 0}, 10))
	b.Lock(figure.FromShape(figure.Shape{{1}}, "#fff", figure.Position{X: 5, Y: 19}, 10))

	eff, _ := r.Lookup(AddLine)
	eff.Apply(e)

	require.True(t, b.Empty(3, 0))
	require.False(t, b.Empty(5, 18))
	require.True(t, b.RowEmpty(19))
	require.Equal(t, game.Running, e.Status())
	require.Equal(t, 0, e.Step(), "no redraw")
}

func TestSpinner_UniformOverOrderedCatalog(t *testing.T) {
	r := registry(t)
	m := sched.NewManual()
	s := NewSpinner(r, m, rand.New(rand.NewPCG(1, 1)), 2*time.Second)

	counts := map[string]int{}
	const spins = 4000
	for i := 0; i < spins; i++ {
		require.True(t, s.Spin(func(e Effect) { counts[e.Name()]++ }))
		require.False(t, s.Spin(nil), "second spin rejected while spinning")
		m.Advance(2 * time.Second)
		require.False(t, s.Spinning())
	}
	// HalveGameSpeed appears twice in four slots.
	require.InDelta(t, 0.5, float64(counts[HalveGameSpeed])/spins, 0.04)
	require.InDelta(t, 0.25, float64(counts[DoubleGameSpeed])/spins, 0.04)
	require.InDelta(t, 0.25, float64(counts[ClearLine])/spins, 0.04)
}
