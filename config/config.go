package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotACommand        = errors.New("not a config command")
	ErrIsComment          = errors.New("is a comment")
	ErrCommandListIsNil   = errors.New("command list is nil (uninitialized)")
	ErrUnterminatedQuote  = errors.New("unterminated quote")
	ErrMultipleCommands   = errors.New("line contains multiple commands")
	ErrMissingArgument    = errors.New("missing argument")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTooManyArguments   = errors.New("too many arguments")
	errEmptyCommandString = errors.New("empty line")
)

// NewConfig initialized a new and empty command list
func NewConfig() Config {
	return make(Config, 0, 1)
}

// ParseConfigBytes parses a config from a byte slice
func ParseConfigBytes(data []byte) (Config, error) {
	var c Config
	err := c.UnmarshalText(data)
	return c, err
}

// ParseConfigReader parses a config from an io.Reader
func ParseConfigReader(r io.Reader) (Config, error) {
	var c Config
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	err = c.UnmarshalText(data)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ParseLine parses all commands of a single line.
// Blank lines and comments return ErrNotACommand.
func ParseLine(line string) ([]Command, error) {
	return parseLine([]byte(line))
}

type Config []Command

func (cc Config) MarshalText() ([]byte, error) {
	var (
		buf = bytes.NewBuffer(make([]byte, 0, 64*len(cc)))
		err error
		txt []byte
	)

	for _, cmd := range cc {
		txt, err = cmd.MarshalText()
		if err != nil {
			return nil, err
		}
		buf.Write(txt)
		buf.WriteRune('\n')
	}

	return buf.Bytes(), nil
}

func (cc *Config) UnmarshalText(data []byte) error {
	if cc == nil {
		return ErrCommandListIsNil
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))

	commands := make([]Command, 0, 4)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++

		cmds, err := parseLine(scanner.Bytes())
		if err == nil {
			commands = append(commands, cmds...)
		} else if errors.Is(err, ErrNotACommand) {
			continue
		} else {
			return fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	*cc = commands
	return nil
}

type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	txt, _ := c.MarshalText()
	return string(txt)
}

func (c *Command) MarshalText() ([]byte, error) {
	size := len(c.Name)
	for _, arg := range c.Args {
		size += len(arg) + 3
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))

	buf.WriteString(c.Name)
	for _, arg := range c.Args {
		buf.WriteRune(' ')
		buf.WriteString(quote(arg))
	}

	return buf.Bytes(), nil
}

// UnmarshalText parses a line that contains exactly one command.
func (c *Command) UnmarshalText(data []byte) error {
	cmds, err := parseLine(data)
	if err != nil {
		return err
	}
	if len(cmds) > 1 {
		return fmt.Errorf("%w: %d", ErrMultipleCommands, len(cmds))
	}

	*c = cmds[0]
	return nil
}

// Arg returns the argument at index i.
func (c Command) Arg(i int) (string, error) {
	if i >= len(c.Args) {
		return "", fmt.Errorf("%w: %s expects at least %d argument(s)", ErrMissingArgument, c.Name, i+1)
	}
	return c.Args[i], nil
}

// ExpectArgs fails unless the command has between least and most arguments.
func (c Command) ExpectArgs(least, most int) error {
	switch {
	case len(c.Args) < least:
		return fmt.Errorf("%w: %s expects at least %d argument(s)", ErrMissingArgument, c.Name, least)
	case len(c.Args) > most:
		return fmt.Errorf("%w: %s expects at most %d argument(s)", ErrTooManyArguments, c.Name, most)
	}
	return nil
}

func (c Command) Int(i int) (int, error) {
	arg, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not an integer", ErrInvalidArgument, c.Name, arg)
	}
	return v, nil
}

func (c Command) Float(i int) (float64, error) {
	arg, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidArgument, c.Name, arg)
	}
	return v, nil
}

// Duration parses either a Go duration like 1m30s or a plain number
// which is multiplied by unit.
func (c Command) Duration(i int, unit time.Duration) (time.Duration, error) {
	arg, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	if d, err := time.ParseDuration(arg); err == nil {
		return d, nil
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a duration", ErrInvalidArgument, c.Name, arg)
	}
	return time.Duration(v * float64(unit)), nil
}

// Bool accepts 1/0, on/off, true/false and yes/no.
func (c Command) Bool(i int) (bool, error) {
	arg, err := c.Arg(i)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(arg) {
	case "1", "on", "true", "yes":
		return true, nil
	case "0", "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalidArgument, c.Name, arg)
}

// parseLine splits a line into commands. Commands are separated by
// semicolons, arguments by whitespace. Double quotes group an argument,
// within quotes \" and \\ are escapes. A # outside of quotes starts a comment.
func parseLine(data []byte) ([]Command, error) {
	var (
		commands []Command
		words    []string
		word     []byte
		inWord   bool
		inQuotes bool
		comment  bool
	)

	endWord := func() {
		if inWord {
			words = append(words, string(word))
			word = word[:0]
			inWord = false
		}
	}
	endCommand := func() {
		endWord()
		if len(words) == 0 {
			return
		}
		cmd := Command{Name: words[0]}
		if len(words) > 1 {
			cmd.Args = words[1:]
		}
		commands = append(commands, cmd)
		words = nil
	}

outer:
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case inQuotes && c == '\\' && i+1 < len(data) && (data[i+1] == '"' || data[i+1] == '\\'):
			i++
			word = append(word, data[i])
		case inQuotes && c == '"':
			inQuotes = false
		case inQuotes:
			word = append(word, c)
		case c == '"':
			inQuotes = true
			inWord = true
		case c == '#':
			comment = true
			break outer
		case c == ';':
			endCommand()
		case isSpace(c):
			endWord()
		default:
			word = append(word, c)
			inWord = true
		}
	}
	if inQuotes {
		return nil, ErrUnterminatedQuote
	}
	endCommand()

	if len(commands) == 0 {
		if comment {
			return nil, fmt.Errorf("%w: %w", ErrNotACommand, ErrIsComment)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotACommand, errEmptyCommandString)
	}
	return commands, nil
}
