// Package cluster implements the optional multi-process supervisor: a
// master process that spawns N worker children sharing a listen port,
// respawns crashed workers under a throttle, and forwards shutdown/restart
// signals. Grounded on original_source/src/modules/cluster.c (ecewo's
// cluster module) and its public contract in include/ecewo/cluster.h.
package cluster

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkers            = 1
	maxWorkers            = 255
	respawnThrottleCount  = 3
	respawnThrottleWindow = 5 * time.Second
)

// Config mirrors ecewo's Cluster struct: worker count, whether crashed
// workers are respawned, and lifecycle callbacks invoked on the master.
type Config struct {
	Workers       uint8
	Respawn       bool
	OnWorkerStart func(workerID uint8)
	OnWorkerExit  func(workerID uint8, err error)
}

// loadEnvConfig overlays CLUSTER_WORKERS and CLUSTER_RESPAWN onto cfg,
// matching cluster.c's load_env_config.
func loadEnvConfig(cfg *Config) {
	if v := os.Getenv("CLUSTER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= minWorkers && n <= maxWorkers {
			cfg.Workers = uint8(n)
		}
	}
	if v := os.Getenv("CLUSTER_RESPAWN"); v != "" {
		cfg.Respawn = v == "1" || v == "true" || v == "yes"
	}
}

// workerArgs is the argv contract a worker process is launched with:
// `--cluster-worker <id> <port>`. Parsed with go-arg rather than a manual
// argv scan, since the rest of the corpus (varavelio-vdl/toolchain,
// varavelio-vdl/urpc) already reaches for go-arg for CLI parsing.
type workerArgs struct {
	ClusterWorker []string `arg:"--cluster-worker" placeholder:"ID PORT"`
}

type childProcess struct {
	id             uint8
	port           uint16
	cmd            *exec.Cmd
	restarts       []time.Time
	respawnOff     bool
}

// Supervisor owns the master's view of its worker children. Only the master
// process constructs one; workers never do.
type Supervisor struct {
	mu        sync.Mutex
	cfg       Config
	basePort  uint16
	exePath   string
	origArgs  []string
	children  []*childProcess
	group     *errgroup.Group
	groupCtx  context.Context
	cancel    context.CancelFunc
}

var (
	mu          sync.Mutex
	isWorkerVal bool
	workerID    uint8
	workerPort  uint16
	workerCount uint8
)

// IsWorker reports whether this process was launched as a cluster worker
// (i.e. with a --cluster-worker argv triplet).
func IsWorker() bool {
	mu.Lock()
	defer mu.Unlock()
	return isWorkerVal
}

// IsMaster reports whether this process is the cluster master (the
// complement of IsWorker once Init has run).
func IsMaster() bool { return !IsWorker() }

// WorkerID returns this process's worker id. Only meaningful when IsWorker.
func WorkerID() uint8 {
	mu.Lock()
	defer mu.Unlock()
	return workerID
}

// WorkerCount returns the configured number of workers.
func WorkerCount() uint8 {
	mu.Lock()
	defer mu.Unlock()
	return workerCount
}

// CPUCount returns runtime.NumCPU(), the suggested default worker count.
func CPUCount() uint8 { return uint8(runtime.NumCPU()) }

// parseWorkerArgs extracts a --cluster-worker triplet from argv, if present.
func parseWorkerArgs(argv []string) (id uint8, port uint16, ok bool, err error) {
	start := -1
	for i, a := range argv {
		if a == "--cluster-worker" {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, 0, false, nil
	}
	end := start + 3
	if end > len(argv) {
		end = len(argv)
	}
	var wa workerArgs
	p, perr := arg.NewParser(arg.Config{}, &wa)
	if perr != nil {
		return 0, 0, false, perr
	}
	if perr := p.Parse(argv[start:end]); perr != nil {
		return 0, 0, false, perr
	}
	if len(wa.ClusterWorker) != 2 {
		return 0, 0, false, nil
	}
	idN, err := strconv.Atoi(wa.ClusterWorker[0])
	if err != nil {
		return 0, 0, false, fmt.Errorf("cluster: invalid worker id %q: %w", wa.ClusterWorker[0], err)
	}
	portN, err := strconv.Atoi(wa.ClusterWorker[1])
	if err != nil {
		return 0, 0, false, fmt.Errorf("cluster: invalid worker port %q: %w", wa.ClusterWorker[1], err)
	}
	return uint8(idN), uint16(portN), true, nil
}

// Init decides whether this process is a cluster worker or the master and
// acts accordingly.
//
// If argv (normally os.Args[1:]) carries a --cluster-worker triplet, Init
// returns immediately with the port this worker should listen on; the
// caller is expected to start its own server.Serve loop on that port.
//
// Otherwise this process becomes the master: it spawns cfg.Workers children
// (each re-invoking the current executable with a --cluster-worker triplet
// appended), installs signal handlers, and blocks supervising them —
// respawning crashed workers under the throttle policy — until a shutdown
// signal arrives or the context is canceled. Init never returns a port for
// the master case; the master runs no server of its own.
func Init(ctx context.Context, cfg Config, basePort uint16, argv []string) (port uint16, master bool, err error) {
	if id, p, ok, perr := parseWorkerArgs(argv); perr == nil && ok {
		mu.Lock()
		isWorkerVal = true
		workerID = id
		workerPort = p
		mu.Unlock()
		return p, false, nil
	} else if perr != nil {
		return 0, false, perr
	}

	loadEnvConfig(&cfg)
	if cfg.Workers < minWorkers {
		cfg.Workers = minWorkers
	}
	if cfg.Workers > maxWorkers {
		cfg.Workers = maxWorkers
	}

	mu.Lock()
	workerCount = cfg.Workers
	mu.Unlock()

	exePath, err := os.Executable()
	if err != nil {
		exePath = argv0()
	}

	sup := &Supervisor{
		cfg:      cfg,
		basePort: basePort,
		exePath:  exePath,
		origArgs: filterClusterWorkerArgs(argv),
	}

	return 0, true, sup.run(ctx)
}

func argv0() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return ""
}

// filterClusterWorkerArgs strips any prior --cluster-worker triplet from
// argv, matching cluster.c's build_worker_args filtering rule — so a
// respawned or re-launched master's own argv is never accidentally
// forwarded to a child as a worker triplet.
func filterClusterWorkerArgs(argv []string) []string {
	out := make([]string, 0, len(argv))
	for i := 0; i < len(argv); i++ {
		if argv[i] == "--cluster-worker" {
			i += 2
			continue
		}
		out = append(out, argv[i])
	}
	return out
}

func (s *Supervisor) buildWorkerArgs(id uint8, port uint16) []string {
	args := make([]string, 0, len(s.origArgs)+3)
	args = append(args, s.origArgs...)
	args = append(args, "--cluster-worker", strconv.Itoa(int(id)), strconv.Itoa(int(port)))
	return args
}

func (s *Supervisor) workerPort(id uint8) uint16 {
	if runtime.GOOS == "windows" {
		return s.basePort + uint16(id)
	}
	return s.basePort
}

func (s *Supervisor) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	registerSIGUSR2(sigCh)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	s.groupCtx = gctx

	s.children = make([]*childProcess, s.cfg.Workers)
	for i := uint8(0); i < s.cfg.Workers; i++ {
		if err := s.spawnWorker(i); err != nil {
			return fmt.Errorf("cluster: spawning worker %d: %w", i, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.signalAll(syscall.SIGTERM)
			return g.Wait()
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				s.signalAll(syscall.SIGTERM)
				return g.Wait()
			default:
				if isSIGUSR2(sig) {
					s.signalAll(syscall.SIGTERM)
				}
			}
		}
	}
}

func (s *Supervisor) spawnWorker(id uint8) error {
	port := s.workerPort(id)
	cmd := exec.Command(s.exePath, s.buildWorkerArgs(id, port)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	child := &childProcess{id: id, port: port, cmd: cmd}
	s.mu.Lock()
	s.children[id] = child
	s.mu.Unlock()

	if s.cfg.OnWorkerStart != nil {
		s.cfg.OnWorkerStart(id)
	}

	s.group.Go(func() error {
		return s.superviseChild(child)
	})
	return nil
}

// superviseChild waits for one worker and, if it exits unexpectedly and
// respawn is enabled and not throttled, replaces it.
func (s *Supervisor) superviseChild(child *childProcess) error {
	for {
		err := child.cmd.Wait()

		if s.cfg.OnWorkerExit != nil {
			s.cfg.OnWorkerExit(child.id, err)
		}

		select {
		case <-s.groupCtx.Done():
			return nil
		default:
		}

		if !s.shouldRespawn(child) {
			return nil
		}

		cmd := exec.Command(s.exePath, s.buildWorkerArgs(child.id, child.port)...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("cluster: respawning worker %d: %w", child.id, err)
		}
		child.cmd = cmd
		if s.cfg.OnWorkerStart != nil {
			s.cfg.OnWorkerStart(child.id)
		}
	}
}

// shouldRespawn applies the throttle policy: more than
// respawnThrottleCount restarts within respawnThrottleWindow disables
// respawn for that worker slot, matching cluster.c's should_respawn_worker.
func (s *Supervisor) shouldRespawn(child *childProcess) bool {
	if !s.cfg.Respawn || child.respawnOff {
		return false
	}

	now := time.Now()
	child.restarts = append(child.restarts, now)
	if len(child.restarts) > respawnThrottleCount+1 {
		child.restarts = child.restarts[len(child.restarts)-(respawnThrottleCount+1):]
	}
	if len(child.restarts) > respawnThrottleCount {
		window := now.Sub(child.restarts[0])
		if window < respawnThrottleWindow {
			child.respawnOff = true
			return false
		}
	}
	return true
}

func (s *Supervisor) signalAll(sig os.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.children {
		if c != nil && c.cmd.Process != nil {
			_ = c.cmd.Process.Signal(sig)
		}
	}
}
