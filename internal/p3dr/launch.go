package p3dr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"georeg/internal/logging"
)

// LaunchOptions configures a private server launch.
type LaunchOptions struct {
	// StartupAttempts is how many times the address file is polled,
	// one second apart, before the launch is abandoned (default 10).
	StartupAttempts int
	Logger          *slog.Logger
}

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.StartupAttempts <= 0 {
		o.StartupAttempts = 10
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// serverConfig is the JSON configuration handed to a private server.
type serverConfig struct {
	Address string           `json:"address"`
	Port    int              `json:"port"`
	Out     map[string]any   `json:"out"`
	Log     serverLogConfig  `json:"log"`
	Beta    serverBetaConfig `json:"beta"`
}

type serverLogConfig struct {
	Level string `json:"level"`
}

type serverBetaConfig struct {
	AddressFile string `json:"address-file"`
}

type serverAddress struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// ServerProcess is a private server started for the duration of one
// run.
type ServerProcess struct {
	cmd     *exec.Cmd
	address string
	logger  *slog.Logger
	files   []string
}

// LaunchServer starts a private server process. The server is told to
// bind an ephemeral port and publish its address through a file,
// which is polled until the server comes up.
func LaunchServer(ctx context.Context, serverPath, severity string, opts LaunchOptions) (*ServerProcess, error) {
	opts = opts.withDefaults()

	addressFile, err := os.CreateTemp("", "georeg-server-address-*.json")
	if err != nil {
		return nil, fmt.Errorf("%w: address file: %v", ErrConnection, err)
	}
	_ = addressFile.Close()

	cfg := serverConfig{
		Address: "localhost",
		Port:    0,
		Out:     map[string]any{},
		Log:     serverLogConfig{Level: severity},
		Beta:    serverBetaConfig{AddressFile: addressFile.Name()},
	}
	cfgData, err := json.Marshal(cfg)
	if err != nil {
		_ = os.Remove(addressFile.Name())
		return nil, fmt.Errorf("%w: encode server config: %v", ErrConnection, err)
	}
	cfgFile, err := os.CreateTemp("", "georeg-server-config-*.json")
	if err != nil {
		_ = os.Remove(addressFile.Name())
		return nil, fmt.Errorf("%w: config file: %v", ErrConnection, err)
	}
	if _, err := cfgFile.Write(cfgData); err != nil {
		_ = cfgFile.Close()
		_ = os.Remove(addressFile.Name())
		_ = os.Remove(cfgFile.Name())
		return nil, fmt.Errorf("%w: write server config: %v", ErrConnection, err)
	}
	_ = cfgFile.Close()

	proc := &ServerProcess{
		logger: opts.Logger,
		files:  []string{addressFile.Name(), cfgFile.Name()},
	}

	proc.cmd = exec.Command(serverPath, "run", "-c", cfgFile.Name())
	proc.cmd.Stdout = os.Stderr
	proc.cmd.Stderr = os.Stderr
	if err := proc.cmd.Start(); err != nil {
		proc.removeFiles()
		return nil, fmt.Errorf("%w: start server %q: %v", ErrConnection, serverPath, err)
	}
	opts.Logger.Info("private server started",
		logging.String("path", serverPath),
		logging.Int("pid", proc.cmd.Process.Pid))

	addr, err := awaitAddress(ctx, addressFile.Name(), opts.StartupAttempts)
	if err != nil {
		proc.Stop()
		return nil, err
	}
	proc.address = net.JoinHostPort(addr.Address, strconv.Itoa(addr.Port))
	return proc, nil
}

func awaitAddress(ctx context.Context, path string, attempts int) (serverAddress, error) {
	var addr serverAddress
	for i := 0; i < attempts; i++ {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			if json.Unmarshal(data, &addr) == nil && addr.Port > 0 {
				return addr, nil
			}
		}
		select {
		case <-ctx.Done():
			return addr, fmt.Errorf("%w: awaiting server address: %v", ErrConnection, ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return addr, fmt.Errorf("%w: server did not publish an address", ErrConnection)
}

// Address returns the host:port the server is listening on.
func (p *ServerProcess) Address() string { return p.address }

// Stop kills the server process and reaps it.
func (p *ServerProcess) Stop() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		p.logger.Info("private server stopped", logging.Int("pid", p.cmd.Process.Pid))
		p.cmd = nil
	}
	p.removeFiles()
}

func (p *ServerProcess) removeFiles() {
	for _, f := range p.files {
		_ = os.Remove(f)
	}
	p.files = nil
}
