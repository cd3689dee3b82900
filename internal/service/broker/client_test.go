package broker

import (
	"testing"
	"time"
)

func TestParseFrame(t *testing.T) {
	tokens := map[string]string{"99926000": "NIFTY", "53216": "NIFTY28AUG25FUT"}
	at := time.Date(2025, 8, 4, 4, 0, 0, 0, time.UTC)

	ticks, err := ParseFrame([]byte(`{"token":"99926000","last_traded_price":2495050,"exchange_type":1,"exchange_timestamp":1754280000000}`), tokens, at)
	if err != nil || len(ticks) != 1 {
		t.Fatalf("parse: %v %v", ticks, err)
	}
	tk := ticks[0]
	if tk.Symbol != "NIFTY" || tk.Price != 24950.5 || tk.Exchange != "NSE" || !tk.ReceivedAt.Equal(at) {
		t.Fatalf("unexpected tick %+v", tk)
	}
	if tk.MarketTimestamp == nil || tk.MarketTimestamp.UnixMilli() != 1754280000000 {
		t.Fatalf("unexpected market timestamp %v", tk.MarketTimestamp)
	}

	ticks, err = ParseFrame([]byte(`[{"tk":"53216","ltp":25010.25,"vol":75},{"tk":"53216","ltpc":25011},{"type":"heartbeat"}]`), tokens, at)
	if err != nil || len(ticks) != 2 {
		t.Fatalf("parse array: %v %v", ticks, err)
	}
	if ticks[0].Symbol != "NIFTY28AUG25FUT" || ticks[0].Price != 25010.25 || ticks[0].Volume != 75 {
		t.Fatalf("unexpected compact tick %+v", ticks[0])
	}
	if ticks[1].Price != 25011 {
		t.Fatalf("ltpc must be used when ltp is absent, got %+v", ticks[1])
	}

	if _, err := ParseFrame([]byte(`not json`), tokens, at); err == nil {
		t.Fatalf("expected decode error")
	}
	ticks, _ = ParseFrame([]byte(`{"symbol":"SENSEX","ltp":81000}`), tokens, at)
	if len(ticks) != 1 || ticks[0].Symbol != "SENSEX" {
		t.Fatalf("explicit symbol must win, got %+v", ticks)
	}
}
