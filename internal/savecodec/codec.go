// internal/savecodec/codec.go
//
// Binary save format for containment games (.vsc files).
// Layout (big-endian):
//
//	offset 0   size    uint16
//	offset 2   level   uint8
//	offset 3   budget  uint8
//	offset 4   size rows of W bytes each
//
// W = ceil(bitlen(3^size - 1) / 8) is fixed per size, so rows are
// fixed-length. A row is its cells read as base-3 digits, column 0 most
// significant. The turn counter is not part of the format.

package savecodec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/robalobadob/virusspread/internal/game"
)

// Extension is the conventional file extension for save files.
const Extension = ".vsc"

const headerLen = 4

var (
	// ErrMalformed is returned for truncated or inconsistent input.
	ErrMalformed = errors.New("malformed save data")
	// ErrOutOfRange is returned when a snapshot cannot be represented.
	ErrOutOfRange = errors.New("snapshot not encodable")
)

var three = big.NewInt(3)

// RowWidth returns W, the byte width of one encoded row for a board size.
func RowWidth(size int) int {
	top := new(big.Int).Exp(three, big.NewInt(int64(size)), nil)
	top.Sub(top, big.NewInt(1))
	return (top.BitLen() + 7) / 8
}

// EncodedLen is the total byte length of a save for a board size.
func EncodedLen(size int) int { return headerLen + size*RowWidth(size) }

// Encode writes s to w.
func Encode(w io.Writer, s game.Snapshot) error {
	if err := checkEncodable(s); err != nil {
		return err
	}
	var hdr [headerLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(s.Size))
	hdr[2] = uint8(s.Level)
	hdr[3] = uint8(s.Budget)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	width := RowWidth(s.Size)
	buf := make([]byte, width)
	for _, row := range s.Board {
		packRow(row, buf)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes s into a new byte slice.
func Marshal(s game.Snapshot) ([]byte, error) {
	var b bytes.Buffer
	if err := Encode(&b, s); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode reads one save from r. It never returns a partial snapshot.
func Decode(r io.Reader) (game.Snapshot, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return game.Snapshot{}, malformed("header", err)
	}
	size := int(binary.BigEndian.Uint16(hdr[0:2]))
	if size == 0 {
		return game.Snapshot{}, fmt.Errorf("%w: zero board size", ErrMalformed)
	}
	s := game.Snapshot{
		Size:   size,
		Level:  int(hdr[2]),
		Budget: int(hdr[3]),
		Board:  make([][]game.Cell, size),
	}

	width := RowWidth(size)
	buf := make([]byte, width)
	for i := range s.Board {
		if _, err := io.ReadFull(r, buf); err != nil {
			return game.Snapshot{}, malformed(fmt.Sprintf("row %d", i), err)
		}
		row, err := unpackRow(buf, size)
		if err != nil {
			return game.Snapshot{}, fmt.Errorf("row %d: %w", i, err)
		}
		s.Board[i] = row
	}
	return s, nil
}

// Unmarshal decodes b, which must hold exactly one save.
func Unmarshal(b []byte) (game.Snapshot, error) {
	r := bytes.NewReader(b)
	s, err := Decode(r)
	if err != nil {
		return game.Snapshot{}, err
	}
	if r.Len() != 0 {
		return game.Snapshot{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return s, nil
}

// SaveFile writes s to path, replacing any existing file.
func SaveFile(path string, s game.Snapshot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if err := Encode(w, s); err != nil {
		return err
	}
	return w.Flush()
}

// LoadFile reads a save from path.
func LoadFile(path string) (game.Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return game.Snapshot{}, err
	}
	return Unmarshal(b)
}

func checkEncodable(s game.Snapshot) error {
	switch {
	case s.Size < 1 || s.Size > 0xFFFF:
		return fmt.Errorf("%w: size %d", ErrOutOfRange, s.Size)
	case s.Level < 0 || s.Level > 0xFF:
		return fmt.Errorf("%w: level %d", ErrOutOfRange, s.Level)
	case s.Budget < 0 || s.Budget > 0xFF:
		return fmt.Errorf("%w: budget %d", ErrOutOfRange, s.Budget)
	case len(s.Board) != s.Size:
		return fmt.Errorf("%w: %d rows for size %d", ErrOutOfRange, len(s.Board), s.Size)
	}
	for r, row := range s.Board {
		if len(row) != s.Size {
			return fmt.Errorf("%w: row %d has %d cells", ErrOutOfRange, r, len(row))
		}
		for c, v := range row {
			if !v.Valid() {
				return fmt.Errorf("%w: cell (%d,%d) = %d", ErrOutOfRange, r, c, v)
			}
		}
	}
	return nil
}

// packRow writes the base-3 value of row into buf, big-endian, zero-padded.
func packRow(row []game.Cell, buf []byte) {
	n := new(big.Int)
	for _, v := range row {
		n.Mul(n, three)
		n.Add(n, big.NewInt(int64(v)))
	}
	n.FillBytes(buf)
}

// unpackRow recovers size base-3 digits from buf, least significant digit
// into the last column.
func unpackRow(buf []byte, size int) ([]game.Cell, error) {
	n := new(big.Int).SetBytes(buf)
	row := make([]game.Cell, size)
	digit := new(big.Int)
	for c := size - 1; c >= 0; c-- {
		n.DivMod(n, three, digit)
		row[c] = game.Cell(digit.Int64())
	}
	if n.Sign() != 0 {
		return nil, fmt.Errorf("%w: row value exceeds 3^%d", ErrMalformed, size)
	}
	return row, nil
}

func malformed(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s", ErrMalformed, what)
	}
	return fmt.Errorf("read %s: %w", what, err)
}
