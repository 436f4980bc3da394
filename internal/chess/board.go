// Package chess implements the rules of chess as pure functions over an
// immutable board: legal move generation, move application, check and
// terminal detection, and a stable position fingerprint for repetition
// claims. The host side owns ranks 0 and 1 and moves towards rank 7.
package chess

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"kasupel-server/internal/models"
)

// PieceType is the wire ordinal for a piece kind.
type PieceType int

const (
	Pawn   PieceType = 1
	Rook   PieceType = 2
	Knight PieceType = 3
	Bishop PieceType = 4
	Queen  PieceType = 5
	King   PieceType = 6
)

// Square is a board coordinate, both axes 0-7.
type Square struct {
	Rank int `json:"rank"`
	File int `json:"file"`
}

func (s Square) valid() bool {
	return s.Rank >= 0 && s.Rank < 8 && s.File >= 0 && s.File < 8
}

// Move is a piece relocation. Promotion must be set if and only if the move
// takes a pawn to the far rank.
type Move struct {
	StartRank int       `json:"start_rank"`
	StartFile int       `json:"start_file"`
	EndRank   int       `json:"end_rank"`
	EndFile   int       `json:"end_file"`
	Promotion PieceType `json:"promotion,omitempty"`
}

func (m Move) from() Square { return Square{m.StartRank, m.StartFile} }
func (m Move) to() Square   { return Square{m.EndRank, m.EndFile} }

// InBounds reports whether both endpoints are on the board.
func (m Move) InBounds() bool {
	return m.from().valid() && m.to().valid()
}

// Board is a chess position: piece placement plus the state that raw
// placement cannot carry (side to move, castling rights, en passant target).
// Pieces are runes in FEN style, uppercase for host, 0 for empty.
type Board struct {
	squares    [8][8]rune
	sideToMove models.Side

	hostKingside  bool
	hostQueenside bool
	awayKingside  bool
	awayQueenside bool

	enPassant *Square
}

// NewBoard returns the standard starting position with host to move.
func NewBoard() *Board {
	b := &Board{
		sideToMove:    models.SideHost,
		hostKingside:  true,
		hostQueenside: true,
		awayKingside:  true,
		awayQueenside: true,
	}
	back := []rune{'R', 'N', 'B', 'Q', 'K', 'B', 'N', 'R'}
	for file := 0; file < 8; file++ {
		b.squares[0][file] = back[file]
		b.squares[1][file] = 'P'
		b.squares[6][file] = 'p'
		b.squares[7][file] = back[file] + ('a' - 'A')
	}
	return b
}

// Copy returns an independent copy of the position.
func (b *Board) Copy() *Board {
	c := *b
	if b.enPassant != nil {
		ep := *b.enPassant
		c.enPassant = &ep
	}
	return &c
}

// SideToMove returns the side whose turn it is.
func (b *Board) SideToMove() models.Side {
	return b.sideToMove
}

// Piece returns the rune at a square, or 0 if empty.
func (b *Board) Piece(rank, file int) rune {
	return b.squares[rank][file]
}

func isHostPiece(p rune) bool { return p >= 'A' && p <= 'Z' }

func sideOf(p rune) models.Side {
	if isHostPiece(p) {
		return models.SideHost
	}
	return models.SideAway
}

// TypeOf returns the piece kind for a board rune.
func TypeOf(p rune) PieceType {
	switch p {
	case 'P', 'p':
		return Pawn
	case 'R', 'r':
		return Rook
	case 'N', 'n':
		return Knight
	case 'B', 'b':
		return Bishop
	case 'Q', 'q':
		return Queen
	case 'K', 'k':
		return King
	}
	return 0
}

func pieceRune(t PieceType, side models.Side) rune {
	var p rune
	switch t {
	case Pawn:
		p = 'P'
	case Rook:
		p = 'R'
	case Knight:
		p = 'N'
	case Bishop:
		p = 'B'
	case Queen:
		p = 'Q'
	case King:
		p = 'K'
	}
	if side == models.SideAway {
		p += 'a' - 'A'
	}
	return p
}

// WireMap renders the placement for clients: "<rank>,<file>" keys mapping to
// [piece type, side] pairs, empty squares omitted.
func (b *Board) WireMap() map[string][2]int {
	out := make(map[string][2]int)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p := b.squares[rank][file]
			if p == 0 {
				continue
			}
			key := fmt.Sprintf("%d,%d", rank, file)
			out[key] = [2]int{int(TypeOf(p)), int(sideOf(p))}
		}
	}
	return out
}

// Serialize renders the position as a FEN-style string: placement from rank
// 7 down, side to move, castling rights, en passant target.
func (b *Board) Serialize() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			p := b.squares[rank][file]
			if p == 0 {
				empty++
				continue
			}
			if empty > 0 {
				fmt.Fprintf(&sb, "%d", empty)
				empty = 0
			}
			sb.WriteRune(p)
		}
		if empty > 0 {
			fmt.Fprintf(&sb, "%d", empty)
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	if b.sideToMove == models.SideHost {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}
	castling := ""
	if b.hostKingside {
		castling += "K"
	}
	if b.hostQueenside {
		castling += "Q"
	}
	if b.awayKingside {
		castling += "k"
	}
	if b.awayQueenside {
		castling += "q"
	}
	if castling == "" {
		castling = "-"
	}
	sb.WriteString(castling)
	if b.enPassant != nil {
		fmt.Fprintf(&sb, " %c%d", 'a'+b.enPassant.File, b.enPassant.Rank+1)
	} else {
		sb.WriteString(" -")
	}
	return sb.String()
}

// Parse rebuilds a board from its Serialize output.
func Parse(s string) (*Board, error) {
	parts := strings.Fields(s)
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed position %q", s)
	}
	b := &Board{}
	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("malformed placement %q", parts[0])
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for _, c := range row {
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			if file > 7 || TypeOf(c) == 0 {
				return nil, fmt.Errorf("malformed rank %q", row)
			}
			b.squares[rank][file] = c
			file++
		}
		if file != 8 {
			return nil, fmt.Errorf("malformed rank %q", row)
		}
	}
	switch parts[1] {
	case "w":
		b.sideToMove = models.SideHost
	case "b":
		b.sideToMove = models.SideAway
	default:
		return nil, fmt.Errorf("malformed side %q", parts[1])
	}
	b.hostKingside = strings.Contains(parts[2], "K")
	b.hostQueenside = strings.Contains(parts[2], "Q")
	b.awayKingside = strings.Contains(parts[2], "k")
	b.awayQueenside = strings.Contains(parts[2], "q")
	if parts[3] != "-" {
		if len(parts[3]) != 2 {
			return nil, fmt.Errorf("malformed en passant target %q", parts[3])
		}
		sq := Square{
			File: int(parts[3][0] - 'a'),
			Rank: int(parts[3][1] - '1'),
		}
		if !sq.valid() {
			return nil, fmt.Errorf("malformed en passant target %q", parts[3])
		}
		b.enPassant = &sq
	}
	return b, nil
}

// Fingerprint is a 128-bit digest equal for equivalent positions: same
// placement, side to move, castling rights and en passant target.
func (b *Board) Fingerprint() string {
	sum := md5.Sum([]byte(b.Serialize()))
	return hex.EncodeToString(sum[:])
}
