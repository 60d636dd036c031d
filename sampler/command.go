package sampler

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobileperf/leakmon/sample"
)

// CommandSampler wraps a device-bridge tool (a pyidevice or adb
// wrapper) that streams per-process counters as text lines. The tool's
// output format is ad hoc; lines are parsed tolerantly and anything
// unrecognizable is skipped. Values are passed through as reported.
//
// The reader goroutine keeps only the most recent parsed snapshot;
// Sample hands that out with a fresh timestamp each tick, so a slow or
// bursty tool still yields a steady once-per-tick stream.
type CommandSampler struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	log    zerolog.Logger

	mu     sync.Mutex
	latest *sample.PerfSnapshot
}

// NewCommandSampler starts the bridge command and begins consuming its
// output.
func NewCommandSampler(command string, args []string, log zerolog.Logger) (*CommandSampler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe: %v", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start bridge command %q: %v", command, err)
	}

	cs := &CommandSampler{
		cmd:    cmd,
		cancel: cancel,
		log:    log.With().Str("component", "command-sampler").Str("command", command).Logger(),
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			snap, ok := parseBridgeLine(scanner.Text())
			if !ok {
				continue
			}
			cs.mu.Lock()
			cs.latest = snap
			cs.mu.Unlock()
		}
		cs.log.Info().Msg("bridge command output closed")
	}()

	return cs, nil
}

func (c *CommandSampler) Sample(ctx context.Context) (*sample.PerfSnapshot, error) {
	c.mu.Lock()
	latest := c.latest
	c.mu.Unlock()

	if latest == nil {
		return nil, ErrNoData
	}

	now := time.Now()
	snap := *latest
	snap.Time = now.Format("15:04:05.000")
	snap.Timestamp = float64(now.UnixNano()) / 1e9
	return &snap, nil
}

func (c *CommandSampler) Close() error {
	c.cancel()
	return c.cmd.Wait()
}

// Bridge tools emit python-dict-ish lines like
//
//	{'Pid': 5672, 'Name': 'ReelShort', 'CPU': '29.23 %', 'Memory': '390.78 MiB', 'Threads': 67}
//
// or looser "CPU: 12.3  Memory: 301.2" key-value text. Either shape is
// accepted; a line without a memory figure is not a snapshot.
var (
	rePid     = regexp.MustCompile(`'Pid':\s*(\d+)`)
	reName    = regexp.MustCompile(`'Name':\s*'([^']*)'`)
	reThreads = regexp.MustCompile(`'Threads':\s*(\d+)`)
	reCPU     = regexp.MustCompile(`(?i)\bcpu\b[':\s]*'?([0-9.]+)`)
	reMemory  = regexp.MustCompile(`(?i)\bmem(?:ory)?\b[':\s]*'?([0-9.]+)`)
	reFPS     = regexp.MustCompile(`(?i)\bfps\b[':\s]*'?([0-9]+)`)
)

func parseBridgeLine(line string) (*sample.PerfSnapshot, bool) {
	m := reMemory.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	memMB, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}

	snap := &sample.PerfSnapshot{MemoryMB: memMB, Name: "bridge"}

	if m := reCPU.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			snap.CPUPercent = v
		}
	}
	if m := rePid.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseUint(m[1], 10, 32); err == nil {
			snap.PID = uint32(v)
		}
	}
	if m := reName.FindStringSubmatch(line); m != nil {
		snap.Name = m[1]
	}
	if m := reThreads.FindStringSubmatch(line); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			snap.ThreadCount = v
		}
	}
	if m := reFPS.FindStringSubmatch(line); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			snap.FPS = v
		}
	}

	return snap, true
}
