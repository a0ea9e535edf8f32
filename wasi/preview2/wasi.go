package preview2

import (
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// DefaultPollInterval is how long a blocking poll sleeps between readiness
// checks.
const DefaultPollInterval = time.Millisecond

// WASI configures a WASI preview2 host environment. Use builder methods to
// set it up before handing it to the interface hosts.
type WASI struct {
	resources    *ResourceTable
	clock        *Clock
	client       *http.Client
	log          *zap.Logger
	env          map[string]string
	args         []string
	capacities   []uint64
	forbidden    []string
	pollInterval time.Duration
}

// New creates a WASI environment with a system clock, the default HTTP
// client and the default forbidden header list.
func New() *WASI {
	w := &WASI{
		resources:    NewResourceTable(),
		clock:        SystemClock(),
		client:       http.DefaultClient,
		log:          Logger(),
		env:          make(map[string]string),
		forbidden:    host.DefaultForbiddenHeaders,
		pollInterval: DefaultPollInterval,
	}
	w.resources.Subscribe(resource.ObserverFunc(w.logEvent))
	return w
}

func (w *WASI) logEvent(e resource.Event) {
	if ce := w.log.Check(zap.DebugLevel, "resource "+e.Type.String()); ce != nil {
		ce.Write(
			zap.Uint32("handle", uint32(e.Handle)),
			zap.Stringer("type", ResourceType(e.TypeID)),
		)
	}
}

// WithEnv sets environment variables
func (w *WASI) WithEnv(env map[string]string) *WASI {
	w.env = env
	return w
}

// WithArgs sets command-line arguments
func (w *WASI) WithArgs(args []string) *WASI {
	w.args = args
	return w
}

// WithClock replaces the system clock.
func (w *WASI) WithClock(c *Clock) *WASI {
	w.clock = c
	return w
}

// WithPollInterval sets the sleep between readiness checks of a blocking
// poll.
func (w *WASI) WithPollInterval(d time.Duration) *WASI {
	if d > 0 {
		w.pollInterval = d
	}
	return w
}

// WithStreamCapacities makes every new output stream report the given
// write capacities in turn. The last one repeats.
func (w *WASI) WithStreamCapacities(steps ...uint64) *WASI {
	w.capacities = append([]uint64(nil), steps...)
	return w
}

// WithForbiddenHeaders replaces the header deny-list used for all fields.
func (w *WASI) WithForbiddenHeaders(names []string) *WASI {
	w.forbidden = names
	return w
}

// WithHTTPClient sets the client used by the outgoing handler.
func (w *WASI) WithHTTPClient(c *http.Client) *WASI {
	w.client = c
	return w
}

// WithLogger sets the logger used for resource tracing.
func (w *WASI) WithLogger(l *zap.Logger) *WASI {
	if l != nil {
		w.log = l
	}
	return w
}

// Resources returns the resource table
func (w *WASI) Resources() *ResourceTable {
	return w.resources
}

// Env returns environment variables
func (w *WASI) Env() map[string]string {
	return w.env
}

// EnvList returns the environment as name/value pairs sorted by name.
func (w *WASI) EnvList() [][2]string {
	out := make([][2]string, 0, len(w.env))
	for k, v := range w.env {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Args returns command-line arguments
func (w *WASI) Args() []string {
	return w.args
}

// Clock returns the monotonic clock.
func (w *WASI) Clock() *Clock {
	return w.clock
}

// PollInterval returns the blocking poll sleep.
func (w *WASI) PollInterval() time.Duration {
	return w.pollInterval
}

// HTTPClient returns the outgoing HTTP client.
func (w *WASI) HTTPClient() *http.Client {
	return w.client
}

// Log returns the environment's logger.
func (w *WASI) Log() *zap.Logger {
	return w.log
}

// ForbiddenHeaders returns the header deny-list.
func (w *WASI) ForbiddenHeaders() []string {
	return w.forbidden
}

// NewOutputStream creates an output stream over sink that follows the
// configured capacity schedule. limit < 0 means no declared length.
func (w *WASI) NewOutputStream(sink io.Writer, limit int64) *OutputStreamResource {
	return NewOutputStreamResource(sink, NewCapacitySchedule(w.capacities...), limit)
}

// NewFields creates a mutable fields resource using the deny-list.
func (w *WASI) NewFields() *FieldsResource {
	return NewFieldsResource(w.forbidden)
}

// Close drops all resources.
func (w *WASI) Close() {
	w.resources.Clear()
}
