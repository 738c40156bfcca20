package formats

import "testing"

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{"comma", "REF,AMOUNT,DATE\nA,1,2", ','},
		{"tab", "REF\tAMOUNT\tDATE\nA\t1\t2", '\t'},
		{"semicolon", "REF;AMOUNT;DATE;STATUS\nA;1;2;3", ';'},
		{"tie goes to comma", "a,b;c", ','},
		{"empty defaults to comma", "", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDelimiter(tt.sample); got != tt.want {
				t.Errorf("DetectDelimiter(%q) = %q, want %q", tt.sample, got, tt.want)
			}
		})
	}
}

func TestFindHeaderRow(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  int
	}{
		{
			"immediate header",
			[]string{"REFERENCE,AMOUNT,DATE", "GTB-1,100,01/02/2024"},
			0,
		},
		{
			"preamble before header",
			[]string{"Account Statement", "Period: Jan 2024", "", "TRANS REF,DEBIT,CREDIT,VALUE DATE", "GTB-1,100,,01/02/2024"},
			3,
		},
		{
			"single keyword is not enough",
			[]string{"REFERENCE ONLY", "A,B,C"},
			-1,
		},
		{
			"nested keyword counts once",
			[]string{"TRANSACTION LOG", "A,B,C"},
			-1,
		},
		{
			"two keywords sharing a nested match still qualify",
			[]string{"TRANSACTION REFERENCE,AMOUNT", "A,B"},
			0,
		},
		{
			"header beyond scan window is missed",
			[]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "REFERENCE,AMOUNT"},
			-1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findHeaderRow(tt.lines); got != tt.want {
				t.Errorf("findHeaderRow = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		sample     string
		wantFormat string
	}{
		{
			"gtbank via header brand",
			"GTB REF,AMOUNT,TXN DATE,STATUS\nGTB-REF001,5000.00,01/02/2024,SUCCESS",
			"GTBank",
		},
		{
			"paystack via identifier",
			"Paystack Settlement Export\nREFERENCE,AMOUNT,PAID_AT\nPSK_abc123def456,2500.00,2024-02-01T10:30:00",
			"Paystack",
		},
		{
			"flutterwave via data row prefix",
			"REFERENCE,AMOUNT,DATE\nFLW-9988776655,1200.00,2024-02-01 09:00:00",
			"Flutterwave",
		},
		{
			"access bank via reference prefix",
			"REF NO,DEBIT AMT,CREDIT AMT,POST DATE\nACC-100,500.00,,05-Feb-2024",
			"AccessBank",
		},
		{
			"gtbank via distinctive header alias",
			"PAYMENT_REF,AMOUNT,SETTLEMENT_DATE\nX9923001,5000.00,01/02/2024",
			"GTBank",
		},
		{
			"unrecognizable falls back to generic",
			"col1,col2,col3\nfoo,bar,baz",
			"Generic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := Detect(tt.sample)
			if det.Descriptor.Name != tt.wantFormat {
				t.Errorf("Detect format = %s, want %s", det.Descriptor.Name, tt.wantFormat)
			}
		})
	}
}

func TestDetectSkipRows(t *testing.T) {
	sample := "Guaranty Trust Bank\nStatement of Account\nTRANS REF,DEBIT,CREDIT,VALUE DATE\nGTB-1,100,,01/02/2024"
	det := Detect(sample)
	if det.Descriptor.Name != "GTBank" {
		t.Fatalf("format = %s, want GTBank", det.Descriptor.Name)
	}
	if det.HeaderRow != 2 {
		t.Errorf("HeaderRow = %d, want 2", det.HeaderRow)
	}
	if det.SkipRows != 3 {
		t.Errorf("SkipRows = %d, want 3", det.SkipRows)
	}
}

func TestByName(t *testing.T) {
	if d := ByName("gtbank"); d.Name != "GTBank" {
		t.Errorf("ByName(gtbank) = %s", d.Name)
	}
	if d := ByName("nope"); !d.IsGeneric() {
		t.Errorf("ByName(nope) = %s, want Generic", d.Name)
	}
}
