package netcenter

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// FreeIPv4 is one unused address as reported by netcenter
type FreeIPv4 struct {
	IP            netip.Addr
	Subnet        netip.Addr
	MaskLength    int
	SubnetAndMask string
	SubnetName    string
}

// https://www.netcenter.ethz.ch/netcenter/rest/nameToIP/freeIps/v4/{subnet}
type freeIPv4XML struct {
	IP            string `xml:"ip"`
	IPSubnet      string `xml:"ipSubnet"`
	IPMask        string `xml:"ipMask"`
	SubnetAndMask string `xml:"subnetAndMask"`
	SubnetName    string `xml:"subnetName"`
}

type freeIPv4ListXML struct {
	XMLName xml.Name      `xml:"freeIps"`
	FreeIPs []freeIPv4XML `xml:"freeIp"`
	Unknown []unknownXML  `xml:",any"`
}

type unknownXML struct {
	XMLName xml.Name
}

// parseFreeIPv4List accepts exactly one <freeIps> document. Trailing
// elements after the root and unknown children of the root are errors, so a
// malformed answer never turns into an empty list.
func parseFreeIPv4List(body []byte) ([]FreeIPv4, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var list freeIPv4ListXML
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("unmarshal free IPv4 list: %w", err)
	}
	if len(list.Unknown) > 0 {
		return nil, fmt.Errorf("unexpected element <%s> in freeIps", list.Unknown[0].XMLName.Local)
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}

	records := make([]FreeIPv4, 0, len(list.FreeIPs))
	for i, raw := range list.FreeIPs {
		rec, err := raw.toRecord()
		if err != nil {
			return nil, fmt.Errorf("freeIp entry %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("after freeIps: %w", err)
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst, xml.Directive:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("unexpected text after freeIps")
			}
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after freeIps", t.Name.Local)
		default:
			return fmt.Errorf("unexpected content after freeIps")
		}
	}
}

func (x freeIPv4XML) toRecord() (FreeIPv4, error) {
	var missing []string
	for name, value := range map[string]string{
		"ip":            x.IP,
		"ipSubnet":      x.IPSubnet,
		"ipMask":        x.IPMask,
		"subnetAndMask": x.SubnetAndMask,
		"subnetName":    x.SubnetName,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return FreeIPv4{}, fmt.Errorf("missing fields %v", missing)
	}

	ip, err := netip.ParseAddr(strings.TrimSpace(x.IP))
	if err != nil {
		return FreeIPv4{}, fmt.Errorf("ip: %w", err)
	}
	subnet, err := netip.ParseAddr(strings.TrimSpace(x.IPSubnet))
	if err != nil {
		return FreeIPv4{}, fmt.Errorf("ipSubnet: %w", err)
	}
	mask, err := strconv.ParseUint(strings.TrimSpace(x.IPMask), 10, 8)
	if err != nil || mask > 32 {
		return FreeIPv4{}, fmt.Errorf("ipMask: invalid mask length %q", x.IPMask)
	}

	return FreeIPv4{
		IP:            ip,
		Subnet:        subnet,
		MaskLength:    int(mask),
		SubnetAndMask: x.SubnetAndMask,
		SubnetName:    x.SubnetName,
	}, nil
}
