package trace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// A Parser reads a command-stream file and the kernel trace headers it
// references. Kernel traces are parsed lazily, when the scheduler consumes
// the launch command.
type Parser struct {
	listPath string
	dir      string
}

// NewParser creates a Parser for a command-stream file.
func NewParser(listPath string) *Parser {
	return &Parser{
		listPath: listPath,
		dir:      filepath.Dir(listPath),
	}
}

// ParseCommands reads the whole command-stream file. Each non-empty line is
// either a memory copy ("MemcpyHtoD,<hex addr>,<byte count>") or the name
// of a kernel trace file. An unrecognized record is an error; the caller
// treats it as fatal.
func (p *Parser) ParseCommands() ([]Command, error) {
	f, err := os.Open(p.listPath)
	if err != nil {
		return nil, fmt.Errorf("opening command list: %w", err)
	}
	defer f.Close()

	var commands []Command

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd, err := p.parseCommand(line)
		if err != nil {
			return nil, err
		}

		commands = append(commands, cmd)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading command list: %w", err)
	}

	return commands, nil
}

func (p *Parser) parseCommand(line string) (Command, error) {
	switch {
	case strings.HasPrefix(line, "MemcpyHtoD"):
		return p.parseMemcpy(line)
	case strings.HasPrefix(line, "kernel"):
		return Command{
			Kind:      CommandKernelLaunch,
			TracePath: filepath.Join(p.dir, line),
		}, nil
	}

	return Command{}, fmt.Errorf("unsupported command %q", line)
}

func (p *Parser) parseMemcpy(line string) (Command, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return Command{}, fmt.Errorf("malformed memcpy command %q", line)
	}

	addr, err := strconv.ParseUint(
		strings.TrimPrefix(strings.TrimSpace(fields[1]), "0x"), 16, 64)
	if err != nil {
		return Command{}, fmt.Errorf("memcpy command %q: bad address: %w",
			line, err)
	}

	count, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("memcpy command %q: bad byte count: %w",
			line, err)
	}

	return Command{Kind: CommandMemcpyHtoD, Addr: addr, ByteCount: count}, nil
}

// ParseKernelInfo reads the header of one kernel trace file and returns
// its descriptor. The file stays open for later per-block trace reads;
// Kernel.Finalize releases it.
func (p *Parser) ParseKernelInfo(path string) (*Kernel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening kernel trace: %w", err)
	}

	k := &Kernel{TracePath: path, file: f}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "-") {
			// End of the header section.
			break
		}

		if err := k.parseHeaderLine(line); err != nil {
			f.Close()
			return nil, fmt.Errorf("kernel trace %s: %w", path, err)
		}
	}

	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading kernel trace %s: %w", path, err)
	}

	if k.Name == "" {
		f.Close()
		return nil, fmt.Errorf("kernel trace %s: header has no kernel name",
			path)
	}

	// Kernel IDs start at 1; 0 means "no kernel" everywhere downstream.
	if k.ID == 0 {
		f.Close()
		return nil, fmt.Errorf("kernel trace %s: header has no kernel id",
			path)
	}

	return k, nil
}

func (k *Kernel) parseHeaderLine(line string) error {
	key, value, found := strings.Cut(strings.TrimPrefix(line, "-"), "=")
	if !found {
		// Header lines without a value, such as tracer version banners,
		// carry nothing the model needs.
		return nil
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	var err error
	switch key {
	case "kernel name":
		k.Name = value
	case "kernel id":
		k.ID, err = strconv.ParseUint(value, 10, 64)
	case "grid dim":
		k.GridDim, err = parseDim3(value)
	case "block dim":
		k.BlockDim, err = parseDim3(value)
	case "shmem":
		k.SharedMemSize, err = strconv.ParseUint(value, 10, 64)
	case "nregs":
		k.NumRegs, err = strconv.ParseUint(value, 10, 64)
	case "cuda stream id":
		k.StreamID, err = strconv.ParseUint(value, 10, 64)
	case "binary version":
		k.BinaryVersion, err = strconv.ParseUint(value, 10, 64)
	}

	if err != nil {
		return fmt.Errorf("header field %q: bad value %q", key, value)
	}

	return nil
}

// parseDim3 parses "(x,y,z)".
func parseDim3(s string) (Dim3, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return Dim3{}, fmt.Errorf("malformed dim3 %q", s)
	}

	var d Dim3
	var err error
	if d.X, err = strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64); err != nil {
		return Dim3{}, fmt.Errorf("malformed dim3 %q", s)
	}
	if d.Y, err = strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64); err != nil {
		return Dim3{}, fmt.Errorf("malformed dim3 %q", s)
	}
	if d.Z, err = strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64); err != nil {
		return Dim3{}, fmt.Errorf("malformed dim3 %q", s)
	}

	return d, nil
}
