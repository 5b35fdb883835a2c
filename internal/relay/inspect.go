package relay

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// firstLayer picks the decoder from the IP version nibble.
func firstLayer(pkt []byte) (gopacket.LayerType, bool) {
	if len(pkt) == 0 {
		return 0, false
	}
	switch pkt[0] >> 4 {
	case 4:
		return layers.LayerTypeIPv4, true
	case 6:
		return layers.LayerTypeIPv6, true
	}
	return 0, false
}

// sourceAddr returns the IP source address of a raw packet.
func sourceAddr(pkt []byte) (netip.Addr, bool) {
	lt, ok := firstLayer(pkt)
	if !ok {
		return netip.Addr{}, false
	}
	packet := gopacket.NewPacket(pkt, lt, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	nl := packet.NetworkLayer()
	if nl == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFromSlice(nl.NetworkFlow().Src().Raw())
}

// describe renders "src → dst proto len" for debug logs.
func describe(pkt []byte) string {
	lt, ok := firstLayer(pkt)
	if !ok {
		return fmt.Sprintf("non-IP packet, %d bytes", len(pkt))
	}
	packet := gopacket.NewPacket(pkt, lt, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	nl := packet.NetworkLayer()
	if nl == nil {
		return fmt.Sprintf("malformed %s packet, %d bytes", lt, len(pkt))
	}

	proto := "?"
	if all := packet.Layers(); len(all) > 1 {
		proto = all[1].LayerType().String()
	}
	flow := nl.NetworkFlow()
	return fmt.Sprintf("%s → %s %s %d bytes", flow.Src(), flow.Dst(), proto, len(pkt))
}
