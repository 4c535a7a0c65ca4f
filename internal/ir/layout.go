package ir

// Layout decides the order of blocks within a function and the order of
// instructions within each block. It says nothing about what the instructions
// mean; it is the program order that emission and branch relaxation walk.
//
// Blocks and instructions are linked through index slices rather than pointers
// so that Clear keeps all capacity.
type Layout struct {
	firstBlock, lastBlock Block
	blocks                []layoutBlockNode
	insts                 []layoutInstNode
	numBlocks             int
}

type layoutBlockNode struct {
	prev, next          Block
	firstInst, lastInst Inst
	inserted            bool
}

type layoutInstNode struct {
	prev, next Inst
	block      Block
}

// Clear unlinks everything while keeping capacity.
func (l *Layout) Clear() {
	l.firstBlock, l.lastBlock = BlockInvalid, BlockInvalid
	l.blocks = l.blocks[:0]
	l.insts = l.insts[:0]
	l.numBlocks = 0
}

func (l *Layout) blockNode(b Block) *layoutBlockNode {
	for int(b) >= len(l.blocks) {
		l.blocks = append(l.blocks, layoutBlockNode{})
	}
	return &l.blocks[b]
}

func (l *Layout) instNode(i Inst) *layoutInstNode {
	for int(i) >= len(l.insts) {
		l.insts = append(l.insts, layoutInstNode{})
	}
	return &l.insts[i]
}

// NumBlocks returns the number of blocks currently in the layout.
func (l *Layout) NumBlocks() int { return l.numBlocks }

// Entry returns the function entry, the first block in layout order.
func (l *Layout) Entry() Block { return l.firstBlock }

// FirstBlock returns the first block in layout order.
func (l *Layout) FirstBlock() Block { return l.firstBlock }

// LastBlock returns the last block in layout order.
func (l *Layout) LastBlock() Block { return l.lastBlock }

// NextBlock returns the block after b, or BlockInvalid at the end.
func (l *Layout) NextBlock(b Block) Block { return l.blocks[b].next }

// PrevBlock returns the block before b, or BlockInvalid at the start.
func (l *Layout) PrevBlock(b Block) Block { return l.blocks[b].prev }

// IsBlockInserted reports whether b is in the layout.
func (l *Layout) IsBlockInserted(b Block) bool {
	return int(b) < len(l.blocks) && l.blocks[b].inserted
}

// AppendBlock places b last in layout order.
func (l *Layout) AppendBlock(b Block) {
	n := l.blockNode(b)
	if n.inserted {
		panic("BUG: block already in layout: " + b.String())
	}
	n.inserted = true
	n.prev = l.lastBlock
	n.next = BlockInvalid
	if l.lastBlock.Valid() {
		l.blocks[l.lastBlock].next = b
	} else {
		l.firstBlock = b
	}
	l.lastBlock = b
	l.numBlocks++
}

// InsertBlockAfter places b immediately after after in layout order.
func (l *Layout) InsertBlockAfter(b, after Block) {
	n := l.blockNode(b)
	if n.inserted {
		panic("BUG: block already in layout: " + b.String())
	}
	an := l.blockNode(after)
	if !an.inserted {
		panic("BUG: insertion point not in layout: " + after.String())
	}
	n.inserted = true
	n.prev = after
	n.next = an.next
	if an.next.Valid() {
		l.blocks[an.next].prev = b
	} else {
		l.lastBlock = b
	}
	an.next = b
	l.numBlocks++
}

// RemoveBlock unlinks b, which must be empty.
func (l *Layout) RemoveBlock(b Block) {
	n := l.blockNode(b)
	if !n.inserted {
		panic("BUG: block not in layout: " + b.String())
	}
	if n.firstInst.Valid() {
		panic("BUG: removing non-empty block: " + b.String())
	}
	if n.prev.Valid() {
		l.blocks[n.prev].next = n.next
	} else {
		l.firstBlock = n.next
	}
	if n.next.Valid() {
		l.blocks[n.next].prev = n.prev
	} else {
		l.lastBlock = n.prev
	}
	*n = layoutBlockNode{}
	l.numBlocks--
}

// InstBlock returns the block containing i, or BlockInvalid if i is unlinked.
func (l *Layout) InstBlock(i Inst) Block {
	if int(i) >= len(l.insts) {
		return BlockInvalid
	}
	return l.insts[i].block
}

// FirstInst returns the first instruction of b, or InstInvalid if b is empty.
func (l *Layout) FirstInst(b Block) Inst { return l.blocks[b].firstInst }

// LastInst returns the last instruction of b, or InstInvalid if b is empty.
func (l *Layout) LastInst(b Block) Inst { return l.blocks[b].lastInst }

// NextInst returns the instruction after i within its block, or InstInvalid.
func (l *Layout) NextInst(i Inst) Inst { return l.insts[i].next }

// PrevInst returns the instruction before i within its block, or InstInvalid.
func (l *Layout) PrevInst(i Inst) Inst { return l.insts[i].prev }

// AppendInst places i last in block b.
func (l *Layout) AppendInst(i Inst, b Block) {
	in := l.instNode(i)
	if in.block.Valid() {
		panic("BUG: instruction already in layout: " + i.String())
	}
	bn := l.blockNode(b)
	if !bn.inserted {
		panic("BUG: appending to a block not in layout: " + b.String())
	}
	in.block = b
	in.prev = bn.lastInst
	in.next = InstInvalid
	if bn.lastInst.Valid() {
		l.insts[bn.lastInst].next = i
	} else {
		bn.firstInst = i
	}
	bn.lastInst = i
}

// InsertInstBefore places i immediately before before, in the same block.
func (l *Layout) InsertInstBefore(i, before Inst) {
	in := l.instNode(i)
	if in.block.Valid() {
		panic("BUG: instruction already in layout: " + i.String())
	}
	bn := &l.insts[before]
	b := bn.block
	if !b.Valid() {
		panic("BUG: insertion point not in layout: " + before.String())
	}
	in.block = b
	in.next = before
	in.prev = bn.prev
	if bn.prev.Valid() {
		l.insts[bn.prev].next = i
	} else {
		l.blocks[b].firstInst = i
	}
	bn.prev = i
}

// RemoveInst unlinks i from its block.
func (l *Layout) RemoveInst(i Inst) {
	in := &l.insts[i]
	b := in.block
	if !b.Valid() {
		panic("BUG: instruction not in layout: " + i.String())
	}
	if in.prev.Valid() {
		l.insts[in.prev].next = in.next
	} else {
		l.blocks[b].firstInst = in.next
	}
	if in.next.Valid() {
		l.insts[in.next].prev = in.prev
	} else {
		l.blocks[b].lastInst = in.prev
	}
	*in = layoutInstNode{}
}
