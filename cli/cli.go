// Package cli is the command dispatcher: it parses a subcommand with
// go-flags and forwards straight into the chainstore, utxoset, wallet, tx,
// and node packages. It holds no business logic of its own.
package cli

import (
	"fmt"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/utxochain/ledger/addr"
	"github.com/utxochain/ledger/chainerr"
	"github.com/utxochain/ledger/chainstore"
	"github.com/utxochain/ledger/internal/nodelog"
	"github.com/utxochain/ledger/node"
	"github.com/utxochain/ledger/tx"
	"github.com/utxochain/ledger/utxoset"
	"github.com/utxochain/ledger/wallet"
)

// chainDir roots the chain store per node identity so several nodes can run
// against one checkout. walletDir is the same for every node; wallet.Open
// keeps the nodes' stores apart by a per-node file name inside it.
func chainDir(nodeID string) string  { return fmt.Sprintf("./db/bc_%s", nodeID) }
func walletDir(nodeID string) string { return wallet.DefaultDir }

// Options is the top-level flag set: every subcommand hangs off it as a
// go-flags command, the pattern daglabs-btcd's cmd/txgen/config.go uses for
// its own struct-tag-driven CLI.
type Options struct {
	NodeID string `long:"node-id" env:"NODE_ID" description:"node identity, namespaces the chain and wallet store on disk" required:"true"`

	PrintChain struct {
	} `command:"printchain" description:"print every block from the tip to genesis"`

	Reindex struct {
	} `command:"reindex" description:"rebuild the UTXO index from the chain"`

	CreateBlockChain struct {
		Address string `positional-arg-name:"address" required:"true" description:"founder address to pay the genesis reward to"`
	} `command:"createblockchain" description:"initialize a new chain, paying its genesis reward to address"`

	CreateWallet struct {
	} `command:"createwallet" description:"generate a keypair and print its address"`

	ListAddresses struct {
	} `command:"listaddresses" description:"list every address in the wallet store"`

	GetBalance struct {
		Address string `positional-arg-name:"address" required:"true" description:"address to sum UTXO outputs for"`
	} `command:"getbalance" description:"print the balance of address"`

	Send struct {
		From   string `positional-arg-name:"from" required:"true"`
		To     string `positional-arg-name:"to" required:"true"`
		Amount int32  `positional-arg-name:"amount" required:"true"`
		Mine   bool   `long:"mine" description:"mine the transfer locally instead of forwarding it to the central node"`
	} `command:"send" description:"build, sign, and send a transfer"`

	StartNode struct {
		Port string `positional-arg-name:"port" required:"true"`
	} `command:"startnode" description:"run a non-mining node listening on port"`

	MinerNode struct {
		Port    string `positional-arg-name:"port" required:"true"`
		Address string `positional-arg-name:"address" required:"true" description:"address mining rewards are paid to"`
	} `command:"minernode" description:"run a mining node listening on port, paying rewards to address"`
}

// Run parses os.Args and executes whichever subcommand was selected.
func Run() error {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if err := nodelog.Init(fmt.Sprintf("./db/logs_%s", opts.NodeID)); err != nil {
			return err
		}
		defer nodelog.Close()

		switch parser.Active.Name {
		case "printchain":
			return printChain(opts.NodeID)
		case "reindex":
			return reindex(opts.NodeID)
		case "createblockchain":
			return createBlockChain(opts.CreateBlockChain.Address, opts.NodeID)
		case "createwallet":
			return createWallet(opts.NodeID)
		case "listaddresses":
			return listAddresses(opts.NodeID)
		case "getbalance":
			return getBalance(opts.GetBalance.Address, opts.NodeID)
		case "send":
			return send(opts.Send.From, opts.Send.To, opts.Send.Amount, opts.Send.Mine, opts.NodeID)
		case "startnode":
			return startNode(opts.StartNode.Port, opts.NodeID)
		case "minernode":
			return minerNode(opts.MinerNode.Port, opts.MinerNode.Address, opts.NodeID)
		}
		return fmt.Errorf("cli: unknown command %q", parser.Active.Name)
	}

	_, err := parser.Parse()
	if err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}
	return nil
}

func openChain(nodeID string) (*chainstore.Chain, error) {
	return chainstore.Open(chainDir(nodeID))
}

func printChain(nodeID string) error {
	chain, err := openChain(nodeID)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	it, err := chain.Iterator()
	if err != nil {
		return err
	}
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		fmt.Printf("Height: %d\n", b.Height)
		fmt.Printf("Prev. hash: %s\n", b.PrevHash)
		fmt.Printf("Hash: %s\n", b.Hash)
		fmt.Printf("Proof of work valid: %v\n", b.Valid())
		for _, t := range b.Transactions {
			fmt.Println(t)
		}
		fmt.Println()
	}
	return nil
}

func reindex(nodeID string) error {
	chain, err := openChain(nodeID)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	set := utxoset.Open(chain)
	if err := set.Reindex(); err != nil {
		return err
	}
	count, err := set.CountTransactions()
	if err != nil {
		return err
	}
	fmt.Printf("Done! There are %d transactions in the UTXO set.\n", count)
	return nil
}

func createBlockChain(address, nodeID string) error {
	if !wallet.ValidateAddress(address) {
		return errors.New("cli: invalid address")
	}

	chain, err := chainstore.Create(chainDir(nodeID), address)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	set := utxoset.Open(chain)
	if err := set.Reindex(); err != nil {
		return err
	}
	fmt.Println("Finished creating blockchain!")
	return nil
}

func createWallet(nodeID string) error {
	store, err := wallet.Open(walletDir(nodeID), nodeID)
	if err != nil {
		return err
	}
	address, err := store.AddWallet()
	if err != nil {
		return err
	}
	fmt.Printf("New wallet created with address: %s\n", address)
	return nil
}

func listAddresses(nodeID string) error {
	store, err := wallet.Open(walletDir(nodeID), nodeID)
	if err != nil {
		return err
	}
	for _, address := range store.Addresses() {
		fmt.Println(address)
	}
	return nil
}

func getBalance(address, nodeID string) error {
	if !wallet.ValidateAddress(address) {
		return errors.New("cli: invalid address")
	}

	chain, err := openChain(nodeID)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	set := utxoset.Open(chain)
	pubKeyHash, err := addr.Decode(address)
	if err != nil {
		return err
	}
	outs, err := set.FindUTXO(pubKeyHash)
	if err != nil {
		return err
	}

	var balance int32
	for _, out := range outs {
		balance += out.Value
	}
	fmt.Printf("Balance of %s: %d\n", address, balance)
	return nil
}

func send(from, to string, amount int32, mineNow bool, nodeID string) error {
	if !wallet.ValidateAddress(from) {
		return errors.New("cli: invalid from address")
	}
	if !wallet.ValidateAddress(to) {
		return errors.New("cli: invalid to address")
	}

	chain, err := openChain(nodeID)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	set := utxoset.Open(chain)

	store, err := wallet.Open(walletDir(nodeID), nodeID)
	if err != nil {
		return err
	}
	w, err := store.Get(from)
	if err != nil {
		return err
	}

	transfer, err := tx.NewTransfer(from, to, w.PublicKey, amount, set)
	if err != nil {
		if insufficient, ok := errors.Cause(err).(*chainerr.InsufficientFunds); ok {
			return fmt.Errorf("insufficient funds: accumulated %d, requested %d", insufficient.Accumulated, insufficient.Requested)
		}
		return err
	}
	if err := chain.SignTransaction(transfer, w.PrivateKey); err != nil {
		return err
	}

	if mineNow {
		mined, err := node.MineLocally(chain, set, from, []*tx.Transaction{transfer})
		if err != nil {
			return err
		}
		fmt.Printf("Mined block %s at height %d\n", mined.Hash, mined.Height)
	} else {
		if err := node.SendTransaction(transfer, "localhost:"+nodeID); err != nil {
			return err
		}
		fmt.Println("Sent tx")
	}

	fmt.Println("Success!")
	return nil
}

func startNode(port, nodeID string) error {
	chain, err := openChain(nodeID)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	set := utxoset.Open(chain)
	n := node.New("localhost:"+port, "", chain, set)
	return n.Run()
}

func minerNode(port, minerAddress, nodeID string) error {
	if !wallet.ValidateAddress(minerAddress) {
		return errors.New("cli: invalid miner address")
	}

	chain, err := openChain(nodeID)
	if err != nil {
		return err
	}
	defer chain.Close() //nolint:errcheck

	set := utxoset.Open(chain)
	n := node.New("localhost:"+port, minerAddress, chain, set)
	return n.Run()
}
