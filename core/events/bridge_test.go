package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/crypto"
)

func TestTransactionReplayedEvent(t *testing.T) {
	evt := TransactionReplayed{
		ExecutionIndex: 7,
		From:           common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		GasUsed:        90000,
		Prefund:        uint256.NewInt(100000),
		Withdrawn:      uint256.NewInt(70000),
	}.Event()
	if evt.Type != TypeTransactionReplayed {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["executionIndex"] != "7" {
		t.Fatalf("unexpected index: %s", evt.Attributes["executionIndex"])
	}
	if evt.Attributes["prefund"] != "100000" || evt.Attributes["withdrawn"] != "70000" {
		t.Fatalf("unexpected amounts: %+v", evt.Attributes)
	}
}

func TestScanCompletedOmitsCursorWhenDone(t *testing.T) {
	done := ScanCompleted{Mode: "full", Pairs: 3, Reconciled: 3, Complete: true}.Event()
	if _, ok := done.Attributes["next"]; ok {
		t.Fatalf("complete scan should not carry a cursor")
	}
	partial := ScanCompleted{Mode: "full", Pairs: 2, Next: common.HexToHash("0x04")}.Event()
	if partial.Attributes["next"] != common.HexToHash("0x04").Hex() {
		t.Fatalf("unexpected cursor: %s", partial.Attributes["next"])
	}
}

func TestBufferDrainAndDiscard(t *testing.T) {
	var buf Buffer
	owner := crypto.AccountFromEVM(common.HexToAddress("0x01"))
	buf.Emit(ItemMinted{Owner: owner})
	buf.Emit(nil)
	buf.Emit(AuthoritySet{Authority: owner})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	drained := buf.Drain()
	if len(drained) != 2 || drained[0].EventType() != TypeItemMinted {
		t.Fatalf("unexpected drain order: %+v", drained)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer should be empty after drain")
	}
	buf.Emit(EvmAddress{Account: owner})
	buf.Discard()
	if buf.Len() != 0 {
		t.Fatalf("buffer should be empty after discard")
	}
}

type recordingEmitter struct {
	got []Event
}

func (r *recordingEmitter) Emit(evt Event) { r.got = append(r.got, evt) }

func TestFanoutAndRender(t *testing.T) {
	a, b := &recordingEmitter{}, &recordingEmitter{}
	fan := Fanout{a, nil, b}
	fan.Emit(AccountResolved{Address: common.HexToAddress("0x02")})
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("fanout did not reach every emitter")
	}
	rendered := Render(a.got[0])
	if rendered.Type != TypeAccountResolved || rendered.Attributes["address"] == "" {
		t.Fatalf("unexpected rendering: %+v", rendered)
	}
}
