package urlx

import "testing"

func TestNormalizeSuccess(t *testing.T) {
	t.Parallel()

	res := Normalize("pal-robotics.com")
	if !res.OK {
		t.Fatalf("expected ok, got reason %s", res.Reason)
	}
	if res.NormalizedOrigin != "https://pal-robotics.com/" {
		t.Fatalf("unexpected origin: %s", res.NormalizedOrigin)
	}
	if res.ETLD1 != "pal-robotics.com" {
		t.Fatalf("unexpected eTLD1: %s", res.ETLD1)
	}
	if res.OriginalPath != "" {
		t.Fatalf("expected empty path, got %s", res.OriginalPath)
	}
}

func TestNormalizeTwoPartSuffix(t *testing.T) {
	t.Parallel()

	res := Normalize("https://acme.co.uk/store")
	if !res.OK {
		t.Fatalf("expected ok, got reason %s", res.Reason)
	}
	if res.ETLD1 != "acme.co.uk" {
		t.Fatalf("unexpected eTLD1: %s", res.ETLD1)
	}
	if res.OriginalPath != "/store" {
		t.Fatalf("unexpected path: %s", res.OriginalPath)
	}
}

func TestNormalizeSubdomain(t *testing.T) {
	t.Parallel()

	res := Normalize("http://WWW.Shop.Acme.COM:80/a?b=1#frag")
	if !res.OK {
		t.Fatalf("expected ok, got reason %s", res.Reason)
	}
	if res.NormalizedOrigin != "http://www.shop.acme.com/" {
		t.Fatalf("unexpected origin: %s", res.NormalizedOrigin)
	}
	if res.ETLD1 != "acme.com" {
		t.Fatalf("unexpected eTLD1: %s", res.ETLD1)
	}
	if res.OriginalPath != "/a?b=1#frag" {
		t.Fatalf("unexpected path: %s", res.OriginalPath)
	}
}

func TestNormalizeKeepsNonDefaultPort(t *testing.T) {
	t.Parallel()

	res := Normalize("https://acme.com:8443")
	if !res.OK {
		t.Fatalf("expected ok, got reason %s", res.Reason)
	}
	if res.NormalizedOrigin != "https://acme.com:8443/" {
		t.Fatalf("unexpected origin: %s", res.NormalizedOrigin)
	}
}

func TestNormalizeRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input  string
		reason Reason
	}{
		{"ftp://acme.com", ReasonUnsupportedScheme},
		{"http://10.0.0.5", ReasonPrivateOrLocalAddress},
		{"http://127.0.0.1", ReasonPrivateOrLocalAddress},
		{"http://192.168.1.10", ReasonPrivateOrLocalAddress},
		{"http://172.20.0.1", ReasonPrivateOrLocalAddress},
		{"localhost", ReasonPrivateOrLocalAddress},
		{"0.0.0.0", ReasonPrivateOrLocalAddress},
		{"example.com", ReasonPlaceholderDomain},
		{"test.org", ReasonPlaceholderDomain},
		{"intranet", ReasonInvalidDomain},
		{"has space.com", ReasonHasWhitespace},
	}

	for _, tc := range cases {
		res := Normalize(tc.input)
		if res.OK {
			t.Fatalf("%s: expected rejection", tc.input)
		}
		if res.Reason != tc.reason {
			t.Fatalf("%s: expected %s, got %s", tc.input, tc.reason, res.Reason)
		}
		if res.RequestedURL != tc.input {
			t.Fatalf("%s: requested url not preserved", tc.input)
		}
	}
}

func TestNormalizeRejectsLongInput(t *testing.T) {
	t.Parallel()

	long := "https://acme.com/"
	for len(long) <= 2000 {
		long += "aaaaaaaaaa"
	}
	res := Normalize(long)
	if res.OK || res.Reason != ReasonTooLong {
		t.Fatalf("expected TooLong, got ok=%v reason=%s", res.OK, res.Reason)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"pal-robotics.com",
		"https://acme.co.uk/store",
		"http://WWW.Acme.COM:80",
		"https://shop.acme.com.au:8443/x",
	}

	for _, input := range inputs {
		first := Normalize(input)
		if !first.OK {
			t.Fatalf("%s: expected ok", input)
		}
		second := Normalize(first.NormalizedOrigin)
		if !second.OK {
			t.Fatalf("%s: re-normalize failed: %s", input, second.Reason)
		}
		if second.NormalizedOrigin != first.NormalizedOrigin {
			t.Fatalf("%s: origin not a fixed point: %s vs %s",
				input, first.NormalizedOrigin, second.NormalizedOrigin)
		}
		if second.ETLD1 != first.ETLD1 {
			t.Fatalf("%s: eTLD1 not a fixed point", input)
		}
	}
}

func TestETLD1(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"acme.com":           "acme.com",
		"www.acme.com":       "acme.com",
		"a.b.acme.co.uk":     "acme.co.uk",
		"shop.acme.com.au":   "acme.com.au",
		"deep.sub.acme.io":   "acme.io",
		"Mixed.Case.Acme.DE": "acme.de",
	}

	for host, want := range cases {
		if got := ETLD1(host); got != want {
			t.Fatalf("%s: expected %s, got %s", host, want, got)
		}
	}
}
