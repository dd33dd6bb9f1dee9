package inject

import (
	"errors"
	"fmt"
	"os"
	"plugin"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/adaptyst/adaptyst/internal/conn"
	"github.com/adaptyst/adaptyst/pkg/amod"
)

var (
	ErrNotConnected          = errors.New("no coordinator channel in the environment")
	ErrHandshake             = errors.New("coordinator handshake failed")
	ErrRejected              = errors.New("coordinator rejected the message")
	ErrRegionAlreadyStarted  = errors.New("region has already been started")
	ErrRegionNotFound        = errors.New("region has not been started")
	ErrRegionInDifferentUnit = errors.New("region was started by a different thread")
	ErrUnknownModule         = errors.New("unknown module")
)

// InitSymbol is the function an injection plugin exports.
const InitSymbol = "AdaptystInjectionInit"

// InitFunc receives the module's channel once the library is loaded.
type InitFunc func(ch amod.Channel) bool

// Opener loads the injection library of a module.
type Opener interface {
	Open(line ModuleLine, ch amod.Channel) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(line ModuleLine, ch amod.Channel) error

func (f OpenerFunc) Open(line ModuleLine, ch amod.Channel) error { return f(line, ch) }

// PluginOpener loads Go plugins and calls their InitSymbol.
type PluginOpener struct{}

func (PluginOpener) Open(line ModuleLine, ch amod.Channel) error {
	p, err := plugin.Open(line.Path)
	if err != nil {
		return err
	}
	sym, err := p.Lookup(InitSymbol)
	if err != nil {
		return err
	}

	var init InitFunc
	switch f := sym.(type) {
	case func(amod.Channel) bool:
		init = f
	case *InitFunc:
		init = *f
	default:
		return fmt.Errorf("%s in %s has unexpected type %T", InitSymbol, line.Path, sym)
	}
	if !init(ch) {
		return fmt.Errorf("injection library of module %q failed to initialise", line.Name)
	}
	return nil
}

// Config controls Connect.
type Config struct {
	BufSize int
	// Timeout bounds every wait for a coordinator reply.
	Timeout time.Duration
	// Opener defaults to PluginOpener.
	Opener Opener
	Logger *zap.Logger
}

// Module is an injectable module announced by the coordinator.
type Module struct {
	Line ModuleLine
	conn *conn.FDConn
}

// Channel returns the module's dedicated channel.
func (m *Module) Channel() amod.Channel { return m.conn }

// Client is the workflow side of the coordinator channel.
type Client struct {
	main    *conn.FDConn
	timeout time.Duration
	logger  *zap.Logger
	pid     int

	modules map[string]*Module
	order   []string

	// mu serialises requests on the main channel.
	mu sync.Mutex

	regionMu sync.Mutex
	regions  map[string]string
}

// Connect reads the channel descriptors from the environment, performs the
// handshake and opens every announced module.
func Connect(cfg Config) (*Client, error) {
	readFD, err := envFD(EnvReadFD1)
	if err != nil {
		return nil, err
	}
	writeFD, err := envFD(EnvWriteFD2)
	if err != nil {
		return nil, err
	}
	return NewClient(readFD, writeFD, cfg)
}

func envFD(key string) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return -1, fmt.Errorf("%w: %s is not set", ErrNotConnected, key)
	}
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 0 {
		return -1, fmt.Errorf("%w: %s=%q", ErrNotConnected, key, v)
	}
	return fd, nil
}

// NewClient performs the handshake over explicit descriptors.
func NewClient(readFD, writeFD int, cfg Config) (*Client, error) {
	if cfg.BufSize <= 0 {
		cfg.BufSize = conn.DefaultBufSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Opener == nil {
		cfg.Opener = PluginOpener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	main, err := conn.NewFDConn(readFD, writeFD, cfg.BufSize)
	if err != nil {
		return nil, err
	}

	c := &Client{
		main:    main,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.Named("inject"),
		pid:     os.Getpid(),
		modules: map[string]*Module{},
		regions: map[string]string{},
	}
	if err := c.handshake(cfg); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(cfg Config) error {
	if err := c.main.WriteLine(MsgInit, true); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	reply, err := c.main.ReadLine(c.timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if reply != MsgAck {
		return fmt.Errorf("%w: unexpected reply %q", ErrHandshake, reply)
	}

	for {
		msg, err := c.main.ReadLine(c.timeout)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		if msg == MsgStop {
			return nil
		}

		line, err := ParseModuleLine(msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		mc, err := conn.NewFDConn(line.ReadFDs[0], line.WriteFDs[1], cfg.BufSize)
		if err != nil {
			return fmt.Errorf("%w: module %q: %v", ErrHandshake, line.Name, err)
		}
		m := &Module{Line: line, conn: mc}
		c.modules[line.Name] = m
		c.order = append(c.order, line.Name)

		if err := cfg.Opener.Open(line, mc); err != nil {
			c.logger.Warn("injection library not loaded",
				zap.String("module", line.Name),
				zap.String("path", line.Path),
				zap.Error(err))
			continue
		}
		c.logger.Debug("injection library loaded", zap.String("module", line.Name))
	}
}

// Modules returns the announced module names in handshake order.
func (c *Client) Modules() []string { return append([]string(nil), c.order...) }

// Module returns an announced module.
func (c *Client) Module(name string) (*Module, bool) {
	m, ok := c.modules[name]
	return m, ok
}

// PartID identifies the calling thread as <pid>_<tid>.
func (c *Client) PartID() string {
	return strconv.Itoa(c.pid) + "_" + strconv.Itoa(unix.Gettid())
}

func timestamp() string {
	ns, err := Now()
	if err != nil {
		return "-1"
	}
	return strconv.FormatUint(ns, 10)
}

// RegionStart marks the beginning of a named region on the calling thread.
// Callers that want per-thread regions should lock their goroutine to its
// OS thread.
func (c *Client) RegionStart(name string) error {
	part := c.PartID()

	c.regionMu.Lock()
	if _, ok := c.regions[name]; ok {
		c.regionMu.Unlock()
		return fmt.Errorf("%w: %s", ErrRegionAlreadyStarted, name)
	}
	c.regions[name] = part
	c.regionMu.Unlock()

	err := c.request(Region{State: StateStart, PartID: part, Timestamp: timestamp(), Name: name})
	if err != nil {
		c.regionMu.Lock()
		delete(c.regions, name)
		c.regionMu.Unlock()
	}
	return err
}

// RegionEnd marks the end of a region started by the calling thread.
func (c *Client) RegionEnd(name string) error {
	ts := timestamp()
	part := c.PartID()

	c.regionMu.Lock()
	started, ok := c.regions[name]
	switch {
	case !ok:
		c.regionMu.Unlock()
		return fmt.Errorf("%w: %s", ErrRegionNotFound, name)
	case started != part:
		c.regionMu.Unlock()
		return fmt.Errorf("%w: %s", ErrRegionInDifferentUnit, name)
	}
	delete(c.regions, name)
	c.regionMu.Unlock()

	return c.request(Region{State: StateEnd, PartID: part, Timestamp: ts, Name: name})
}

func (c *Client) request(r Region) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.main.WriteLine(r.String(), true); err != nil {
		return err
	}
	reply, err := c.main.ReadLine(c.timeout)
	if err != nil {
		return err
	}
	if reply != MsgAck {
		return fmt.Errorf("%w: %q", ErrRejected, r.String())
	}
	return nil
}

// Send writes raw bytes to a module.
func (c *Client) Send(module string, p []byte) error {
	m, ok := c.modules[module]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	return m.conn.Write(p)
}

// Receive reads up to len(buf) bytes from a module.
func (c *Client) Receive(module string, buf []byte, timeout time.Duration) (int, error) {
	m, ok := c.modules[module]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	return m.conn.Read(buf, timeout)
}

// Close closes every channel.
func (c *Client) Close() error {
	var err error
	for _, name := range c.order {
		err = multierr.Append(err, c.modules[name].conn.Close())
	}
	return multierr.Append(err, c.main.Close())
}
