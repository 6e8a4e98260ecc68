package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"relayhub/internal/domain"
)

const outputBufferMax = 256 * 1024

// childProcess is the supervisor's runtime record for one spawned
// channel plugin.
type childProcess struct {
	id     string
	config domain.ChannelConfig
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout *ringBuffer
	stderr *ringBuffer
	done   chan struct{}

	mu        sync.Mutex
	status    domain.ChannelStatus
	startedAt time.Time
	lastErr   string
}

// processes spawns, tracks, and terminates channel plugin subprocesses.
// Its lifecycle shape — a map of running entries guarded by a mutex, a
// per-entry wait goroutine, ring-buffered stdout/stderr — is the
// teacher's internal/usecase/process.Manager, narrowed from a general
// background-job runner to one purpose: supervising channel plugins.
type processes struct {
	mu       sync.Mutex
	entries  map[string]*childProcess
	onCrash  func(id string, config domain.ChannelConfig, err error)
	onLogger logFunc
}

type logFunc func(msg string, args ...any)

func newProcesses(onCrash func(string, domain.ChannelConfig, error), logf logFunc) *processes {
	return &processes{entries: make(map[string]*childProcess), onCrash: onCrash, onLogger: logf}
}

// spawn launches config's command, if it has one, with extraArgs
// appended (the Hub's own local RPC URL, per §4.6). Channels without a
// command (e.g. in-process or externally managed plugins) are tracked
// as ChannelRunning with no subprocess.
func (p *processes) spawn(config domain.ChannelConfig, extraArgs ...string) (*childProcess, error) {
	argv, hasCmd := config.EffectiveCommand()
	if hasCmd {
		argv = append(append([]string{}, argv...), extraArgs...)
	}

	entry := &childProcess{
		id:        newProcessID(),
		config:    config,
		status:    domain.ChannelStarting,
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}

	if hasCmd {
		ctx, cancel := context.WithCancel(context.Background())
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(), envPairs(config.Env)...)
		if config.WorkspaceDir != "" {
			cmd.Dir = config.WorkspaceDir
		}
		setProcGroup(cmd)
		entry.stdout = newRingBuffer(outputBufferMax)
		entry.stderr = newRingBuffer(outputBufferMax)
		cmd.Stdout = entry.stdout
		cmd.Stderr = entry.stderr
		entry.cmd = cmd
		entry.cancel = cancel

		if err := cmd.Start(); err != nil {
			cancel()
			return nil, fmt.Errorf("spawn channel %q: %w", config.Name, err)
		}
		go p.wait(entry)
	} else {
		close(entry.done)
	}

	entry.mu.Lock()
	entry.status = domain.ChannelRunning
	entry.mu.Unlock()

	p.mu.Lock()
	p.entries[config.Name] = entry
	p.mu.Unlock()
	return entry, nil
}

func (p *processes) wait(entry *childProcess) {
	err := entry.cmd.Wait()
	close(entry.done)

	entry.mu.Lock()
	if entry.status != domain.ChannelStopped {
		entry.status = domain.ChannelCrashed
		if err != nil {
			entry.lastErr = err.Error()
		}
	}
	crashed := entry.status == domain.ChannelCrashed
	entry.mu.Unlock()

	if crashed && p.onCrash != nil {
		p.onCrash(entry.config.Name, entry.config, err)
	}
}

// terminate stops a running channel's subprocess (if any) and removes
// it from tracking.
func (p *processes) terminate(channelID string) error {
	p.mu.Lock()
	entry, ok := p.entries[channelID]
	if ok {
		delete(p.entries, channelID)
	}
	p.mu.Unlock()
	if !ok {
		return domain.NewSubSystemError("supervisor", "terminate", domain.ErrChannelNotFound, channelID)
	}

	entry.mu.Lock()
	entry.status = domain.ChannelStopped
	entry.mu.Unlock()

	if entry.cancel != nil {
		if entry.cmd != nil {
			terminateGroup(entry.cmd)
		}
		entry.cancel()
		<-entry.done
	}
	return nil
}

func (p *processes) info(channelID string) (domain.ChannelInfo, bool) {
	p.mu.Lock()
	entry, ok := p.entries[channelID]
	p.mu.Unlock()
	if !ok {
		return domain.ChannelInfo{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	info := domain.ChannelInfo{
		Name:      entry.config.Name,
		Status:    entry.status,
		StartedAt: entry.startedAt,
		LastError: entry.lastErr,
	}
	if entry.cmd != nil && entry.cmd.Process != nil {
		info.PID = entry.cmd.Process.Pid
	}
	return info, true
}

func (p *processes) list() []domain.ChannelInfo {
	p.mu.Lock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	out := make([]domain.ChannelInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := p.info(id); ok {
			out = append(out, info)
		}
	}
	return out
}

func (p *processes) stopAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.terminate(id)
	}
}

func envPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

func newProcessID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
