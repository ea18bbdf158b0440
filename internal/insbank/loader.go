package insbank

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load reads a Cherry-style ".ins" instrument list dump.
//
// The file is line-based ASCII. A "V" line declares the format version;
// version 1 adds the layout (module ID) column. Data lines are
//
//	M lsb msb pc 0 layout NAME    melody instrument
//	D lsb msb pc 0 layout NAME    drum kit
//	L/P/N ...                     layout, category, per-note drum names
//
// The pc column is 1-based in the file. Lines starting with '#' and blank
// lines are skipped.
func Load(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open instrument list %s: %w", path, err)
	}
	defer f.Close()

	bank := &Bank{}
	version := 0
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		lineType, fields, desc, ok := parseLine(scanner.Text(), version)
		if !ok {
			continue
		}
		switch lineType {
		case 'V':
			version = int(fields[0])
			if version > 1 {
				return nil, fmt.Errorf("%s:%d: unknown instrument list version %d", path, lineNo, version)
			}
		case 'M', 'D':
			if fields[colPC] == 0 {
				continue
			}
			ins := Instrument{
				BankMSB:  fields[colMSB],
				BankLSB:  fields[colLSB],
				Program:  fields[colPC] - 1,
				ModuleID: fields[colGra],
				Name:     desc,
			}
			bank.add(ins, lineType == 'D')
		case 'L', 'P', 'N':
			// layout names, categories and per-note drum names are not needed
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read instrument list %s: %w", path, err)
	}
	return bank, nil
}

const (
	colLSB = iota // Bank LSB
	colMSB        // Bank MSB
	colPC         // program/instrument ID (1-based)
	colKey        // key/note
	colGra        // layout (module) ID
)

func parseLine(line string, version int) (lineType byte, fields [5]uint8, desc string, ok bool) {
	line = strings.TrimLeft(line, " \t")
	if line == "" || line[0] == '#' {
		return 0, fields, "", false
	}
	if line[0] < 'A' || line[0] > 'Z' {
		return 0, fields, "", false
	}
	cols := strings.Fields(line)

	numFields := 5
	if version == 0 {
		numFields = 4 // old versions lack the GRA column
	}
	if len(cols) < 1+numFields+1 {
		return 0, fields, "", false
	}
	for i := 0; i < numFields; i++ {
		v, err := strconv.ParseUint(cols[1+i], 10, 8)
		if err != nil {
			return 0, fields, "", false
		}
		fields[i] = uint8(v)
	}
	desc = strings.Join(cols[1+numFields:], " ")
	return cols[0][0], fields, desc, true
}
