// Package node is the TCP gossip node: version handshake, inventory
// advertisement, block/transaction propagation, mempool, and miner
// behavior, built around an explicit Node context instead of package-level
// globals, and a 4-byte-tag/length-prefixed wire format.
package node

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vrecan/death/v3"

	"github.com/utxochain/ledger/block"
	"github.com/utxochain/ledger/chainstore"
	"github.com/utxochain/ledger/internal/nodelog"
	"github.com/utxochain/ledger/tx"
	"github.com/utxochain/ledger/utxoset"
)

// CentralAddr is the hard-coded bootstrap node address.
const CentralAddr = "localhost:3000"

// Node is the process-wide state a running node needs: its own address,
// an optional mining-reward address, the chain/UTXO handles, the mempool,
// and the set of known peers. Passed explicitly rather than held in
// package globals.
type Node struct {
	SelfAddr  string
	MinerAddr string // non-empty marks this node as a miner

	Chain *chainstore.Chain
	UTXO  *utxoset.Set

	mempoolMu sync.Mutex
	mempool   map[string]*tx.Transaction

	peersMu sync.RWMutex
	peers   []string

	blocksInTransitMu sync.Mutex
	blocksInTransit   []string

	log *log.Logger
}

// New constructs a Node bound to chain/utxo, listening as selfAddr.
// minerAddr may be empty (non-mining node).
func New(selfAddr, minerAddr string, chain *chainstore.Chain, utxo *utxoset.Set) *Node {
	return &Node{
		SelfAddr:  selfAddr,
		MinerAddr: minerAddr,
		Chain:     chain,
		UTXO:      utxo,
		mempool:   make(map[string]*tx.Transaction),
		peers:     []string{CentralAddr},
		log:       nodelog.Get(nodelog.Net),
	}
}

func (n *Node) isCentral() bool {
	return n.SelfAddr == CentralAddr
}

func (n *Node) isMiner() bool {
	return n.MinerAddr != ""
}

func (n *Node) knownPeers() []string {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	out := make([]string, len(n.peers))
	copy(out, n.peers)
	return out
}

func (n *Node) addPeer(addr string) {
	if addr == "" || addr == n.SelfAddr {
		return
	}
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	for _, p := range n.peers {
		if p == addr {
			return
		}
	}
	n.peers = append(n.peers, addr)
}

// dropPeer removes addr from the known set after a failed send.
func (n *Node) dropPeer(addr string) {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	filtered := n.peers[:0]
	for _, p := range n.peers {
		if p != addr {
			filtered = append(filtered, p)
		}
	}
	n.peers = filtered
}

func (n *Node) send(addr, cmd string, payload interface{}) {
	if err := sendTo(addr, cmd, payload); err != nil {
		n.log.Printf("send %s to %s failed: %v", cmd, addr, err)
		n.dropPeer(addr)
	}
}

// Run starts the TCP listener and serves connections until the process
// receives SIGINT/SIGTERM, at which point it closes the listener and the
// chain database and exits the process with status 0.
func (n *Node) Run() error {
	ln, err := net.Listen("tcp", n.SelfAddr)
	if err != nil {
		return errors.Wrap(err, "node: listen")
	}
	defer ln.Close() //nolint:errcheck

	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go d.WaitForDeathWithFunc(func() {
		n.log.Println("shutting down")
		ln.Close() //nolint:errcheck
		n.Chain.Close() //nolint:errcheck
		os.Exit(0)
	})

	if !n.isCentral() {
		height, err := n.Chain.GetBestHeight()
		if err != nil {
			return errors.Wrap(err, "node: read best height")
		}
		n.send(CentralAddr, cmdVersion, versionMsg{BestHeight: height, AddrFrom: n.SelfAddr})
	}

	n.log.Printf("listening on %s (miner=%v)", n.SelfAddr, n.isMiner())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return errors.Wrap(err, "node: accept")
		}
		go n.handleConnection(conn)
	}
}

func (n *Node) handleConnection(conn net.Conn) {
	defer conn.Close() //nolint:errcheck

	cmd, payload, err := readFrame(conn)
	if err != nil {
		n.log.Printf("read frame failed: %v", err)
		return
	}

	if err := n.dispatch(cmd, payload); err != nil {
		n.log.Printf("handle %q failed: %v", cmd, err)
	}
}

func (n *Node) dispatch(cmd string, payload []byte) error {
	switch cmd {
	case "vers":
		return n.handleVersion(payload)
	case "addr":
		return n.handleAddr(payload)
	case "tx":
		return n.handleTx(payload)
	case "blc":
		return n.handleBlock(payload)
	case "inv":
		return n.handleInv(payload)
	case "gbl":
		return n.handleGetBlocks(payload)
	case "gdt":
		return n.handleGetData(payload)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// SendTransaction is the client path: connect to the central node and
// send one tx message, without starting a listener.
func SendTransaction(t *tx.Transaction, selfAddr string) error {
	data, err := t.Serialize()
	if err != nil {
		return err
	}
	return sendTo(CentralAddr, cmdTx, txMsg{AddrFrom: selfAddr, Tx: data})
}

// MineLocally appends a coinbase paying minerAddr to transactions, mines
// them immediately into the chain, and applies the new block to utxo. Used
// by the CLI's `send --mine` path and by miner nodes.
func MineLocally(chain *chainstore.Chain, utxo *utxoset.Set, minerAddr string, transactions []*tx.Transaction) (*block.Block, error) {
	coinbase, err := tx.NewCoinbase(minerAddr, "")
	if err != nil {
		return nil, err
	}
	all := append(append([]*tx.Transaction{}, transactions...), coinbase)

	mined, err := chain.MineBlock(all)
	if err != nil {
		return nil, err
	}
	if err := utxo.Update(mined); err != nil {
		return nil, err
	}
	return mined, nil
}
