package modem_test

import (
	"fmt"

	"i4.energy/across/heracles/modem"
)

const testFirmware = "1951B08SIM7080"

// ModemScript scripts a TestTransport with the replies of a healthy modem,
// one command at a time.
type ModemScript struct {
	transport *modem.TestTransport
}

func NewModemScript(transport *modem.TestTransport) *ModemScript {
	return &ModemScript{transport: transport}
}

func (b *ModemScript) AT() *ModemScript {
	b.transport.Reply("AT", "\r\nOK\r\n")
	return b
}

func (b *ModemScript) Firmware(rev string) *ModemScript {
	b.transport.Reply("AT+GMR", fmt.Sprintf("\r\nRevision:%s\r\n\r\nOK\r\n", rev))
	return b
}

func (b *ModemScript) NetworkMode() *ModemScript {
	b.transport.Reply("AT+CMNB=1", "\r\nOK\r\n")
	return b
}

func (b *ModemScript) VerboseErrors() *ModemScript {
	b.transport.Reply("AT+CMEE=2", "\r\nOK\r\n")
	return b
}

func (b *ModemScript) SIMSlot(sim modem.SIM) *ModemScript {
	b.transport.Reply(fmt.Sprintf("AT+CSIMSW=%d", sim), "\r\nOK\r\n")
	return b
}

func (b *ModemScript) SimReady() *ModemScript {
	b.transport.Reply("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n")
	return b
}

func (b *ModemScript) SimPinRequired() *ModemScript {
	b.transport.Reply("AT+CPIN?", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n")
	return b
}

func (b *ModemScript) SMSTextMode() *ModemScript {
	b.transport.Reply("AT+CMGF=1", "\r\nOK\r\n")
	return b
}

// Flush scripts the replies to the socket and bearer teardown that ends
// Init. Without them the parser stays armed for a command reply and later
// URCs arrive as intermediate lines.
func (b *ModemScript) Flush() *ModemScript {
	b.transport.
		Reply("AT+CACLOSE=0", "\r\nOK\r\n").
		Reply("AT+CNACT=0,0", "\r\nOK\r\n")
	return b
}

// Bearer scripts PDP activation ending with ip assigned.
func (b *ModemScript) Bearer(apn, ip string) *ModemScript {
	b.transport.
		Reply("AT+CNCFG=0,1,"+apn, "\r\nOK\r\n").
		Reply("AT+CNACT=0,0", "\r\nOK\r\n").
		Reply("AT+CNACT=0,1", "\r\nOK\r\n").
		Reply("AT+CNACT?", fmt.Sprintf("\r\n+CNACT: 0,1,\"%s\"\r\n\r\nOK\r\n", ip)).
		Reply("AT+CACLOSE=0", "\r\nOK\r\n")
	return b
}

// Socket scripts a successful AT+CAOPEN to addr:port.
func (b *ModemScript) Socket(addr, port string) *ModemScript {
	b.transport.Reply(fmt.Sprintf("AT+CAOPEN=0,0,\"TCP\",\"%s\",\"%s\"", addr, port), "\r\n+CAOPEN: 0,0\r\n\r\nOK\r\n")
	return b
}

// Ready scripts every reply Init needs on the external SIM slot.
func (b *ModemScript) Ready() *ModemScript {
	return b.AT().
		Firmware(testFirmware).
		NetworkMode().
		VerboseErrors().
		SIMSlot(modem.SIMExternal).
		SimReady().
		Flush()
}

func (b *ModemScript) Build() *modem.TestTransport {
	return b.transport
}
