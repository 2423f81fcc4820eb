// ABOUTME: Minimal argument parsing and prompting helpers for subcommands
// ABOUTME: Flags take the --name value form; everything else is positional

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

type parsedArgs struct {
	values     map[string]string
	bools      map[string]bool
	positional []string
}

// parseArgs splits args into named values, boolean switches, and
// positionals. boolFlags lists the names that take no value.
func parseArgs(args []string, boolFlags ...string) parsedArgs {
	p := parsedArgs{values: map[string]string{}, bools: map[string]bool{}}
	isBool := map[string]bool{}
	for _, b := range boolFlags {
		isBool[b] = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			p.positional = append(p.positional, arg)
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if k, v, ok := strings.Cut(name, "="); ok {
			p.values[k] = v
			continue
		}
		if isBool[name] {
			p.bools[name] = true
			continue
		}
		if i+1 < len(args) {
			p.values[name] = args[i+1]
			i++
		}
	}
	return p
}

func (p parsedArgs) get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

func (p parsedArgs) ptr(name string) *string {
	if v, ok := p.values[name]; ok {
		return &v
	}
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func stdinReader() *bufio.Reader {
	return bufio.NewReader(os.Stdin)
}
