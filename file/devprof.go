package file

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/google/pprof/profile"

	"github.com/rdailey98/xv6-operating-system/defs"
	"github.com/rdailey98/xv6-operating-system/stat"
)

// profDev_t implements defs.D_PROF: a process writes "<tag> <count>"
// sample lines to it (one line per profiling bucket it wants to
// contribute to), and a read returns the accumulated samples encoded as
// a standard pprof profile via google/pprof/profile, so the result can
// be piped straight into `go tool pprof`. This is the teaching kernel's
// stand-in for a real sampling profiler device.
type profDev_t struct {
	mu     sync.Mutex
	counts map[string]int64
	out    *bytes.Buffer
}

func newProfDev() *profDev_t {
	return &profDev_t{counts: make(map[string]int64)}
}

func (d *profDev_t) Write(src []byte) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		d.counts[fields[0]] += n
	}
	d.out = nil
	return len(src), 0
}

func (d *profDev_t) Read(dst []byte) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		p, err := d.build()
		if err != nil {
			return 0, -defs.EINVAL
		}
		d.out = &bytes.Buffer{}
		if err := p.Write(d.out); err != nil {
			return 0, -defs.EINVAL
		}
	}
	n := copy(dst, d.out.Bytes())
	d.out.Next(n)
	return n, 0
}

func (d *profDev_t) build() (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
	}
	i := uint64(1)
	for tag, n := range d.counts {
		fn := &profile.Function{ID: i, Name: tag}
		loc := &profile.Location{ID: i, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{n},
		})
		i++
	}
	return p, nil
}

func (d *profDev_t) Close() defs.Err_t { return 0 }

func (d *profDev_t) Fstat() (stat.Stat_t, defs.Err_t) {
	return stat.Stat_t{Type: defs.I_DEV, Rdev: uint(defs.D_PROF)}, 0
}
