package chess

import (
	"kasupel-server/internal/models"
)

// Outcome is the terminal state of a position for the side to move.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCheckmate
	OutcomeStalemate
)

func pawnDirection(side models.Side) int {
	if side == models.SideHost {
		return 1
	}
	return -1
}

func homeRank(side models.Side) int {
	if side == models.SideHost {
		return 0
	}
	return 7
}

func lastRank(side models.Side) int {
	return 7 - homeRank(side)
}

// Validate reports whether a move is fully legal for the given side in this
// position, including check, castling and promotion constraints.
func (b *Board) Validate(m Move, side models.Side) bool {
	if !m.InBounds() || side != b.sideToMove {
		return false
	}
	from, to := m.from(), m.to()
	if from == to {
		return false
	}
	piece := b.squares[from.Rank][from.File]
	if piece == 0 || sideOf(piece) != side {
		return false
	}
	if target := b.squares[to.Rank][to.File]; target != 0 && sideOf(target) == side {
		return false
	}
	needsPromotion := TypeOf(piece) == Pawn && to.Rank == lastRank(side)
	if needsPromotion {
		switch m.Promotion {
		case Rook, Knight, Bishop, Queen:
		default:
			return false
		}
	} else if m.Promotion != 0 {
		return false
	}
	if !b.canReach(m, piece, side) {
		return false
	}
	// A move may not leave the mover's own king attacked.
	return !b.Apply(m).IsCheck(side)
}

func (b *Board) canReach(m Move, piece rune, side models.Side) bool {
	from, to := m.from(), m.to()
	dr := to.Rank - from.Rank
	df := to.File - from.File
	abs := func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	}
	switch TypeOf(piece) {
	case Pawn:
		dir := pawnDirection(side)
		target := b.squares[to.Rank][to.File]
		if df == 0 {
			if target != 0 {
				return false
			}
			if dr == dir {
				return true
			}
			pawnHome := homeRank(side) + dir
			middle := b.squares[from.Rank+dir][from.File]
			return dr == 2*dir && from.Rank == pawnHome && middle == 0
		}
		if abs(df) == 1 && dr == dir {
			if target != 0 {
				return true
			}
			return b.enPassant != nil && *b.enPassant == to
		}
		return false
	case Rook:
		return (dr == 0 || df == 0) && b.pathClear(from, to)
	case Knight:
		return (abs(dr) == 2 && abs(df) == 1) || (abs(dr) == 1 && abs(df) == 2)
	case Bishop:
		return abs(dr) == abs(df) && b.pathClear(from, to)
	case Queen:
		return (dr == 0 || df == 0 || abs(dr) == abs(df)) && b.pathClear(from, to)
	case King:
		if abs(dr) <= 1 && abs(df) <= 1 {
			return true
		}
		return b.canCastle(m, side)
	}
	return false
}

// pathClear checks the squares strictly between two points on a line.
func (b *Board) pathClear(from, to Square) bool {
	stepR := sign(to.Rank - from.Rank)
	stepF := sign(to.File - from.File)
	rank, file := from.Rank+stepR, from.File+stepF
	for rank != to.Rank || file != to.File {
		if b.squares[rank][file] != 0 {
			return false
		}
		rank += stepR
		file += stepF
	}
	return true
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func (b *Board) canCastle(m Move, side models.Side) bool {
	rank := homeRank(side)
	from, to := m.from(), m.to()
	if from.Rank != rank || to.Rank != rank || from.File != 4 {
		return false
	}
	var rookFile int
	switch to.File {
	case 6:
		rookFile = 7
		if side == models.SideHost && !b.hostKingside {
			return false
		}
		if side == models.SideAway && !b.awayKingside {
			return false
		}
	case 2:
		rookFile = 0
		if side == models.SideHost && !b.hostQueenside {
			return false
		}
		if side == models.SideAway && !b.awayQueenside {
			return false
		}
	default:
		return false
	}
	rook := b.squares[rank][rookFile]
	if rook == 0 || TypeOf(rook) != Rook || sideOf(rook) != side {
		return false
	}
	for file := min(from.File, rookFile) + 1; file < max(from.File, rookFile); file++ {
		if b.squares[rank][file] != 0 {
			return false
		}
	}
	// The king may not castle out of or through check. Landing in check is
	// caught by the post-move check test.
	enemy := side.Opponent()
	middle := Square{rank, (from.File + to.File) / 2}
	return !b.isAttacked(Square{rank, from.File}, enemy) &&
		!b.isAttacked(middle, enemy)
}

// isAttacked reports whether any piece of the given side attacks the square.
func (b *Board) isAttacked(sq Square, by models.Side) bool {
	abs := func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	}
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			piece := b.squares[rank][file]
			if piece == 0 || sideOf(piece) != by {
				continue
			}
			from := Square{rank, file}
			dr := sq.Rank - rank
			df := sq.File - file
			switch TypeOf(piece) {
			case Pawn:
				if dr == pawnDirection(by) && abs(df) == 1 {
					return true
				}
			case Knight:
				if (abs(dr) == 2 && abs(df) == 1) || (abs(dr) == 1 && abs(df) == 2) {
					return true
				}
			case King:
				if abs(dr) <= 1 && abs(df) <= 1 {
					return true
				}
			case Rook:
				if (dr == 0 || df == 0) && b.pathClear(from, sq) {
					return true
				}
			case Bishop:
				if abs(dr) == abs(df) && b.pathClear(from, sq) {
					return true
				}
			case Queen:
				if (dr == 0 || df == 0 || abs(dr) == abs(df)) && b.pathClear(from, sq) {
					return true
				}
			}
		}
	}
	return false
}

// IsCheck reports whether the given side's king is attacked.
func (b *Board) IsCheck(side models.Side) bool {
	king := pieceRune(King, side)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			if b.squares[rank][file] == king {
				return b.isAttacked(Square{rank, file}, side.Opponent())
			}
		}
	}
	return false
}

// Apply plays a move and returns the resulting position with the other side
// to move. The move is assumed to have passed Validate.
func (b *Board) Apply(m Move) *Board {
	c := b.Copy()
	from, to := m.from(), m.to()
	piece := c.squares[from.Rank][from.File]
	side := sideOf(piece)

	if TypeOf(piece) == Pawn && c.enPassant != nil && to == *c.enPassant &&
		from.File != to.File && c.squares[to.Rank][to.File] == 0 {
		c.squares[from.Rank][to.File] = 0
	}

	c.squares[to.Rank][to.File] = piece
	c.squares[from.Rank][from.File] = 0

	if TypeOf(piece) == King {
		if to.File-from.File == 2 {
			rank := from.Rank
			c.squares[rank][5] = c.squares[rank][7]
			c.squares[rank][7] = 0
		} else if from.File-to.File == 2 {
			rank := from.Rank
			c.squares[rank][3] = c.squares[rank][0]
			c.squares[rank][0] = 0
		}
		if side == models.SideHost {
			c.hostKingside, c.hostQueenside = false, false
		} else {
			c.awayKingside, c.awayQueenside = false, false
		}
	}

	if m.Promotion != 0 {
		c.squares[to.Rank][to.File] = pieceRune(m.Promotion, side)
	}

	// Moving a rook off its corner, or capturing one on it, voids the right.
	for _, sq := range []Square{from, to} {
		switch sq {
		case Square{0, 0}:
			c.hostQueenside = false
		case Square{0, 7}:
			c.hostKingside = false
		case Square{7, 0}:
			c.awayQueenside = false
		case Square{7, 7}:
			c.awayKingside = false
		}
	}

	c.enPassant = nil
	if TypeOf(piece) == Pawn && (to.Rank-from.Rank == 2 || from.Rank-to.Rank == 2) {
		c.enPassant = &Square{(from.Rank + to.Rank) / 2, from.File}
	}

	c.sideToMove = side.Opponent()
	return c
}

// IsReversible reports whether a move preserves the halfmove clock: any pawn
// move or capture resets it.
func (b *Board) IsReversible(m Move) bool {
	from, to := m.from(), m.to()
	piece := b.squares[from.Rank][from.File]
	if TypeOf(piece) == Pawn {
		return false
	}
	return b.squares[to.Rank][to.File] == 0
}

// LegalMoves enumerates every legal move for the given side.
func (b *Board) LegalMoves(side models.Side) []Move {
	var moves []Move
	if side != b.sideToMove {
		return moves
	}
	far := lastRank(side)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			piece := b.squares[rank][file]
			if piece == 0 || sideOf(piece) != side {
				continue
			}
			for endRank := 0; endRank < 8; endRank++ {
				for endFile := 0; endFile < 8; endFile++ {
					m := Move{rank, file, endRank, endFile, 0}
					if TypeOf(piece) == Pawn && endRank == far {
						for _, promo := range []PieceType{Queen, Rook, Bishop, Knight} {
							m.Promotion = promo
							if b.Validate(m, side) {
								moves = append(moves, m)
							}
						}
						continue
					}
					if b.Validate(m, side) {
						moves = append(moves, m)
					}
				}
			}
		}
	}
	return moves
}

// Terminal classifies the position for the side to move: checkmate if they
// are in check with no legal moves, stalemate if not in check with none.
func (b *Board) Terminal() Outcome {
	if len(b.LegalMoves(b.sideToMove)) > 0 {
		return OutcomeNone
	}
	if b.IsCheck(b.sideToMove) {
		return OutcomeCheckmate
	}
	return OutcomeStalemate
}
