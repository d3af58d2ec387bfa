package node

import (
	"github.com/pkg/errors"

	"github.com/utxochain/ledger/block"
	"github.com/utxochain/ledger/tx"
)

// handleVersion implements the handshake: compare heights, request blocks
// if the peer is ahead, reply with our own version if we're ahead, and
// remember the peer's address either way.
func (n *Node) handleVersion(payload []byte) error {
	var msg versionMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}

	height, err := n.Chain.GetBestHeight()
	if err != nil {
		return err
	}

	if height < msg.BestHeight {
		n.send(msg.AddrFrom, cmdGetBlocks, getBlocksMsg{AddrFrom: n.SelfAddr})
	} else if height > msg.BestHeight {
		n.send(msg.AddrFrom, cmdVersion, versionMsg{BestHeight: height, AddrFrom: n.SelfAddr})
	}

	n.addPeer(msg.AddrFrom)
	return nil
}

// handleAddr merges a peer list broadcast into our known peers.
func (n *Node) handleAddr(payload []byte) error {
	var msg addrMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}
	for _, addr := range msg.Addrs {
		n.addPeer(addr)
	}
	n.log.Printf("now know %d peers", len(n.knownPeers()))
	return nil
}

// handleGetBlocks replies with an inventory of every local block hash.
func (n *Node) handleGetBlocks(payload []byte) error {
	var msg getBlocksMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}

	hashes, err := n.Chain.GetBlockHashes()
	if err != nil {
		return err
	}
	n.send(msg.AddrFrom, cmdInv, invMsg{AddrFrom: n.SelfAddr, Kind: "block", Items: hashes})
	return nil
}

// handleGetData replies with the requested block or mempool transaction.
func (n *Node) handleGetData(payload []byte) error {
	var msg getDataMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}

	switch msg.Kind {
	case "block":
		b, err := n.Chain.GetBlock(msg.ID)
		if err != nil {
			return nil // not found: drop silently
		}
		data, err := b.Serialize()
		if err != nil {
			return err
		}
		n.send(msg.AddrFrom, cmdBlock, blockMsg{AddrFrom: n.SelfAddr, Block: data})

	case "tx":
		n.mempoolMu.Lock()
		t, ok := n.mempool[msg.ID]
		n.mempoolMu.Unlock()
		if !ok {
			return nil
		}
		data, err := t.Serialize()
		if err != nil {
			return err
		}
		n.send(msg.AddrFrom, cmdTx, txMsg{AddrFrom: n.SelfAddr, Tx: data})
	}
	return nil
}

// handleInv processes an inventory advertisement: for blocks, request the
// first item and enqueue the rest; for transactions, request it if we
// don't already have it in the mempool.
func (n *Node) handleInv(payload []byte) error {
	var msg invMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}
	if len(msg.Items) == 0 {
		return nil
	}

	switch msg.Kind {
	case "block":
		n.blocksInTransitMu.Lock()
		n.blocksInTransit = msg.Items
		first := n.blocksInTransit[0]
		n.blocksInTransit = n.blocksInTransit[1:]
		n.blocksInTransitMu.Unlock()

		n.send(msg.AddrFrom, cmdGetData, getDataMsg{AddrFrom: n.SelfAddr, Kind: "block", ID: first})

	case "tx":
		txID := msg.Items[0]
		n.mempoolMu.Lock()
		_, known := n.mempool[txID]
		n.mempoolMu.Unlock()
		if !known {
			n.send(msg.AddrFrom, cmdGetData, getDataMsg{AddrFrom: n.SelfAddr, Kind: "tx", ID: txID})
		}
	}
	return nil
}

// handleBlock adds a received block to the chain and continues downloading
// the transit queue if one is in progress. Once the queue is drained it
// announces the block to other peers if it advanced the tip, and reindexes
// the UTXO set.
func (n *Node) handleBlock(payload []byte) error {
	var msg blockMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}

	b, err := block.Deserialize(msg.Block)
	if err != nil {
		return err
	}

	advanced, err := n.Chain.AddBlock(b)
	if err != nil {
		return err
	}
	n.log.Printf("received block %s (advanced=%v)", b.Hash, advanced)

	n.blocksInTransitMu.Lock()
	var next string
	if len(n.blocksInTransit) > 0 {
		next = n.blocksInTransit[0]
		n.blocksInTransit = n.blocksInTransit[1:]
	}
	n.blocksInTransitMu.Unlock()

	if next != "" {
		n.send(msg.AddrFrom, cmdGetData, getDataMsg{AddrFrom: n.SelfAddr, Kind: "block", ID: next})
		return nil
	}

	if advanced {
		for _, peer := range n.knownPeers() {
			if peer != n.SelfAddr && peer != msg.AddrFrom {
				n.send(peer, cmdInv, invMsg{AddrFrom: n.SelfAddr, Kind: "block", Items: []string{b.Hash}})
			}
		}
	}
	return n.UTXO.Reindex()
}

// handleTx implements the transaction-propagation rules: non-miner nodes
// add to mempool and relay if they are the central node; miner nodes with
// a non-empty mempool try to mine immediately.
func (n *Node) handleTx(payload []byte) error {
	var msg txMsg
	if err := gobDecode(payload, &msg); err != nil {
		return err
	}

	t, err := tx.Deserialize(msg.Tx)
	if err != nil {
		return err
	}

	n.mempoolMu.Lock()
	n.mempool[t.ID] = t
	n.mempoolMu.Unlock()

	if n.isCentral() {
		for _, peer := range n.knownPeers() {
			if peer != n.SelfAddr && peer != msg.AddrFrom {
				n.send(peer, cmdInv, invMsg{AddrFrom: n.SelfAddr, Kind: "tx", Items: []string{t.ID}})
			}
		}
		return nil
	}

	if n.isMiner() {
		n.mineMempool()
	}
	return nil
}

// mineMempool verifies every mempool transaction, discards invalid ones,
// and if any remain, appends a coinbase paying MinerAddr and mines a
// block. Repeats while the mempool still has entries after a mined block.
func (n *Node) mineMempool() {
	for {
		n.mempoolMu.Lock()
		if len(n.mempool) == 0 {
			n.mempoolMu.Unlock()
			return
		}
		candidates := make([]*tx.Transaction, 0, len(n.mempool))
		for _, t := range n.mempool {
			candidates = append(candidates, t)
		}
		n.mempoolMu.Unlock()

		var valid []*tx.Transaction
		for _, t := range candidates {
			ok, err := n.Chain.VerifyTransaction(t)
			if err != nil {
				n.log.Printf("tx %s failed verification lookup: %v", t.ID, err)
				continue
			}
			if ok {
				valid = append(valid, t)
			} else {
				n.log.Printf("tx %s is invalid, discarding", t.ID)
			}
		}
		if len(valid) == 0 {
			n.log.Println("no valid transactions to mine")
			return
		}

		mined, err := MineLocally(n.Chain, n.UTXO, n.MinerAddr, valid)
		if err != nil {
			n.log.Printf("mining failed: %v", errors.Cause(err))
			return
		}
		n.log.Printf("mined block %s at height %d", mined.Hash, mined.Height)

		n.mempoolMu.Lock()
		for _, t := range valid {
			delete(n.mempool, t.ID)
		}
		remaining := len(n.mempool)
		n.mempoolMu.Unlock()

		for _, peer := range n.knownPeers() {
			if peer != n.SelfAddr {
				n.send(peer, cmdInv, invMsg{AddrFrom: n.SelfAddr, Kind: "block", Items: []string{mined.Hash}})
			}
		}

		if remaining == 0 {
			return
		}
	}
}
