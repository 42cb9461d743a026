package game

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	// FieldSize is the board edge length; the board is FieldSize×FieldSize.
	FieldSize = 10
	// ShipCells is the total number of occupied cells in a legal fleet:
	// one ship of 4, two of 3, three of 2, four of 1.
	ShipCells = 20
	// HashLength is the expected length of a hex-encoded sha256 commitment.
	HashLength = 64
	// MaxSaltLength bounds the reveal salt.
	MaxSaltLength = 128
)

// shipsSum[size] is the expected number of fully-occupied windows of the
// given length, counting every window a longer ship contributes. A ship of
// length L contributes L-S+1 windows of each size S ≤ L, vertically or
// horizontally; size-1 windows are counted once per cell, not per axis.
var shipsSum = [FieldSize + 1]int{1: ShipCells, 2: 10, 3: 4, 4: 1}

// Field is a row-major board grid; 1 marks an occupied cell.
type Field [FieldSize][FieldSize]int

var ErrPlacementFormat = errors.New("placement must be exactly 100 characters of 0 and 1")

// ParsePlacement maps a placement string row-major into a Field. The string
// must be exactly FieldSize² characters, each '0' or '1'.
func ParsePlacement(placement string) (Field, error) {
	var f Field
	if len(placement) != FieldSize*FieldSize {
		return f, ErrPlacementFormat
	}
	for i := 0; i < len(placement); i++ {
		c := placement[i]
		if c != '0' && c != '1' {
			return f, ErrPlacementFormat
		}
		f[i/FieldSize][i%FieldSize] = int(c - '0')
	}
	return f, nil
}

// CheckShipSum verifies the fleet composition by counting occupied sliding
// windows of every size from FieldSize down to 1 and comparing the counts
// against shipsSum. Horizontal windows of size 1 are skipped so single
// cells are not double-counted.
func CheckShipSum(f Field) bool {
	var sum [FieldSize + 1]int
	for size := FieldSize; size > 0; size-- {
		for i := 0; i < FieldSize; i++ {
			for j := 0; j <= FieldSize-size; j++ {
				vertical := true
				for m := 0; m < size; m++ {
					vertical = vertical && f[j+m][i] == 1
				}
				if vertical {
					sum[size]++
				}

				horizontal := true
				for m := 0; m < size; m++ {
					horizontal = horizontal && f[i][j+m] == 1
				}
				if horizontal && size != 1 {
					sum[size]++
				}
			}
		}
	}
	for size := 1; size <= FieldSize; size++ {
		if sum[size] != shipsSum[size] {
			return false
		}
	}
	return true
}

// CheckDiagonalCollision reports whether no occupied cell touches another
// diagonally. Ships may not meet corner-to-corner; out-of-bounds diagonals
// are vacuously fine.
func CheckDiagonalCollision(f Field) bool {
	vacant := func(x, y int) bool {
		if x < 0 || x >= FieldSize || y < 0 || y >= FieldSize {
			return true
		}
		return f[y][x] != 1
	}
	for y := 0; y < FieldSize; y++ {
		for x := 0; x < FieldSize; x++ {
			if f[y][x] != 1 {
				continue
			}
			if !vacant(x+1, y-1) || !vacant(x-1, y-1) || !vacant(x-1, y+1) || !vacant(x+1, y+1) {
				return false
			}
		}
	}
	return true
}

// VerifyHashFormat reports whether hash looks like a hex-encoded sha256.
func VerifyHashFormat(hash string) bool {
	if len(hash) != HashLength {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// VerifySalt checks the reveal salt format: non-empty, bounded length.
func VerifySalt(salt string) bool {
	return salt != "" && len(salt) <= MaxSaltLength
}

// CommitmentHash computes the commitment over a placement and salt:
// hex(sha256(placement + "|" + salt)).
func CommitmentHash(placement, salt string) string {
	sum := sha256.Sum256([]byte(placement + "|" + salt))
	return hex.EncodeToString(sum[:])
}

// VerifyHash recomputes the commitment and compares it to the stored hash.
func VerifyHash(hash, placement, salt string) bool {
	return CommitmentHash(placement, salt) == hash
}
