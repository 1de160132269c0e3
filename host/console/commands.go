package console

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pioemu/core"
	"pioemu/sdk"
)

// offsetLimit bounds numbers taken as offsets from the PIO base rather
// than absolute addresses. It covers all four alias windows.
const offsetLimit = 0x4000

func parseUint(s string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bitSize)
	if err != nil {
		return 0, errors.Wrapf(core.ErrOutOfRange, "bad number %q", s)
	}
	return v, nil
}

func parseU32(s string) (uint32, error) {
	v, err := parseUint(s, 32)
	return uint32(v), err
}

func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(core.ErrOutOfRange, "bad number %q", s)
	}
	return int(v), nil
}

// address resolves a register name such as SM1_PINCTRL, an offset from
// the PIO base or an absolute address.
func (c *Console) address(s string) (uint32, error) {
	base := c.sdk.Registers().BaseAddress()
	name := strings.ToUpper(s)
	for off := uint32(0); off <= core.IRQ1_INTS; off += 4 {
		if core.RegisterLabel(off) == name {
			return base + off, nil
		}
	}
	v, err := parseU32(s)
	if err != nil {
		return 0, errors.Wrapf(err, "not a register name or address")
	}
	if v < offsetLimit {
		v += base
	}
	return v, nil
}

func (c *Console) sm(s string) (int, error) {
	sm, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	return sm, core.CheckRange("sm", sm, 0, core.SMCount-1)
}

// label names addr, falling back to hex for addresses the peripheral
// does not label.
func (c *Console) label(addr uint32) string {
	if l := c.sdk.Registers().AddressLabel(addr); l != "?" && l != "" {
		return l
	}
	return "0x" + strconv.FormatUint(uint64(addr), 16)
}

// bitOp builds the set, clear and xor commands.
func bitOp(name, help string, op func(c *Console, addr, mask uint32) error) *Command {
	return &Command{
		Name: name, Usage: "reg mask", Help: help, MinArgs: 2, MaxArgs: 2,
		Handler: func(c *Console, args []string) error {
			addr, err := c.address(args[0])
			if err != nil {
				return err
			}
			mask, err := parseU32(args[1])
			if err != nil {
				return err
			}
			return op(c, addr, mask)
		},
	}
}

// smCommand builds a command whose first argument is a state machine.
func smCommand(name, usage, help string, minExtra, maxExtra int,
	run func(c *Console, sm int, args []string) error) *Command {
	return &Command{
		Name: name, Usage: usage, Help: help, MinArgs: 1 + minExtra, MaxArgs: 1 + maxExtra,
		Handler: func(c *Console, args []string) error {
			sm, err := c.sm(args[0])
			if err != nil {
				return err
			}
			return run(c, sm, args[1:])
		},
	}
}

func builtins() []*Command {
	return []*Command{
		{
			Name: "help", Usage: "[command]", Help: "list commands or describe one", MaxArgs: 1,
			Handler: cmdHelp,
		},
		{
			Name: "read", Usage: "reg", Help: "read a register", MinArgs: 1, MaxArgs: 1,
			Handler: func(c *Console, args []string) error {
				addr, err := c.address(args[0])
				if err != nil {
					return err
				}
				v, err := c.sdk.Registers().ReadAddress(addr)
				if err != nil {
					return err
				}
				c.Printf("%s = 0x%08x\n", c.label(addr), v)
				return nil
			},
		},
		{
			Name: "write", Usage: "reg value", Help: "write a register", MinArgs: 2, MaxArgs: 2,
			Handler: func(c *Console, args []string) error {
				addr, err := c.address(args[0])
				if err != nil {
					return err
				}
				v, err := parseU32(args[1])
				if err != nil {
					return err
				}
				return c.sdk.Registers().WriteAddress(addr, v)
			},
		},
		bitOp("set", "set bits through the SET alias", func(c *Console, addr, mask uint32) error {
			return c.sdk.Registers().HWSetBits(addr, mask)
		}),
		bitOp("clear", "clear bits through the CLR alias", func(c *Console, addr, mask uint32) error {
			return c.sdk.Registers().HWClearBits(addr, mask)
		}),
		bitOp("xor", "toggle bits through the XOR alias", func(c *Console, addr, mask uint32) error {
			return c.sdk.Registers().HWXorBits(addr, mask)
		}),
		{
			Name: "mask", Usage: "reg values mask", Help: "replace the masked bits of a register",
			MinArgs: 3, MaxArgs: 3,
			Handler: func(c *Console, args []string) error {
				addr, err := c.address(args[0])
				if err != nil {
					return err
				}
				values, err := parseU32(args[1])
				if err != nil {
					return err
				}
				mask, err := parseU32(args[2])
				if err != nil {
					return err
				}
				return c.sdk.Registers().HWWriteMasked(addr, values, mask)
			},
		},
		{
			Name: "wait", Usage: "reg expected mask [cycles] [timeout]",
			Help:    "poll a register until the masked bits match; budgets of 0 are unlimited",
			MinArgs: 3, MaxArgs: 5,
			Handler: cmdWait,
		},
		{
			Name: "tick", Usage: "[n]", Help: "advance the clock n cycles (default 1)", MaxArgs: 1,
			Handler: func(c *Console, args []string) error {
				n := 1
				if len(args) == 1 {
					var err error
					if n, err = parseInt(args[0]); err != nil {
						return err
					}
					if n < 0 {
						return errors.Wrap(core.ErrOutOfRange, "negative cycle count")
					}
				}
				c.clock.Cycles(n)
				c.Printf("clock %d\n", c.clock.WallClock())
				return nil
			},
		},
		smCommand("init", "sm [pc]", "initialize a state machine with the default config", 0, 1,
			func(c *Console, sm int, args []string) error {
				pc := 0
				if len(args) == 1 {
					var err error
					if pc, err = parseInt(args[0]); err != nil {
						return err
					}
				}
				return c.sdk.SMInit(sm, pc, sdk.DefaultSMConfig())
			}),
		smCommand("enable", "sm", "enable a state machine", 0, 0, func(c *Console, sm int, _ []string) error {
			return c.sdk.SMSetEnabled(sm, true)
		}),
		smCommand("disable", "sm", "disable a state machine", 0, 0, func(c *Console, sm int, _ []string) error {
			return c.sdk.SMSetEnabled(sm, false)
		}),
		smCommand("exec", "sm instr", "force an instruction", 1, 1, func(c *Console, sm int, args []string) error {
			instr, err := parseUint(args[0], 16)
			if err != nil {
				return err
			}
			if err := c.sdk.SMExec(sm, uint16(instr)); err != nil {
				return err
			}
			if stalled, err := c.sdk.SMIsExecStalled(sm); err == nil && stalled {
				c.Printf("sm%d stalled\n", sm)
			}
			return nil
		}),
		smCommand("pc", "sm", "print the program counter", 0, 0, func(c *Console, sm int, _ []string) error {
			pc, err := c.sdk.SMGetPC(sm)
			if err != nil {
				return err
			}
			c.Printf("sm%d pc %d\n", sm, pc)
			return nil
		}),
		smCommand("put", "sm value", "push a word to the TX FIFO", 1, 1, func(c *Console, sm int, args []string) error {
			v, err := parseU32(args[0])
			if err != nil {
				return err
			}
			return c.sdk.SMPut(sm, v)
		}),
		smCommand("get", "sm", "pop a word from the RX FIFO", 0, 0, func(c *Console, sm int, _ []string) error {
			empty, err := c.sdk.SMIsRXFIFOEmpty(sm)
			if err != nil {
				return err
			}
			if empty {
				c.Printf("sm%d rx empty\n", sm)
				return nil
			}
			v, err := c.sdk.SMGet(sm)
			if err != nil {
				return err
			}
			c.Printf("0x%08x\n", v)
			return nil
		}),
		smCommand("level", "sm", "print FIFO levels", 0, 0, func(c *Console, sm int, _ []string) error {
			tx, err := c.sdk.SMGetTXFIFOLevel(sm)
			if err != nil {
				return err
			}
			rx, err := c.sdk.SMGetRXFIFOLevel(sm)
			if err != nil {
				return err
			}
			c.Printf("sm%d tx %d rx %d\n", sm, tx, rx)
			return nil
		}),
		smCommand("pins", "sm values [mask]", "drive pins from a state machine", 1, 2,
			func(c *Console, sm int, args []string) error {
				values, err := parseU32(args[0])
				if err != nil {
					return err
				}
				if len(args) == 1 {
					return c.sdk.SMSetPins(sm, values)
				}
				mask, err := parseU32(args[1])
				if err != nil {
					return err
				}
				return c.sdk.SMSetPinsWithMask(sm, values, mask)
			}),
		smCommand("dirs", "sm dirs mask", "set pin directions from a state machine", 2, 2,
			func(c *Console, sm int, args []string) error {
				dirs, err := parseU32(args[0])
				if err != nil {
					return err
				}
				mask, err := parseU32(args[1])
				if err != nil {
					return err
				}
				return c.sdk.SMSetPinDirsWithMask(sm, dirs, mask)
			}),
		{
			Name: "claim", Usage: "[sm]", Help: "claim a state machine, or the lowest free one", MaxArgs: 1,
			Handler: func(c *Console, args []string) error {
				if len(args) == 1 {
					sm, err := c.sm(args[0])
					if err != nil {
						return err
					}
					return c.sdk.SMClaim(sm)
				}
				sm, err := c.sdk.ClaimUnusedSM(true)
				if err != nil {
					return err
				}
				c.Printf("claimed sm%d\n", sm)
				return nil
			},
		},
		smCommand("unclaim", "sm", "release a state machine", 0, 0, func(c *Console, sm int, _ []string) error {
			return c.sdk.SMUnclaim(sm)
		}),
		{
			Name: "gpio", Usage: "[pin]", Help: "show pin levels, or one pin in detail", MaxArgs: 1,
			Handler: cmdGPIO,
		},
		{
			Name: "trace", Usage: "[on|off|clear]", Help: "show or control the event trace", MaxArgs: 1,
			Handler: cmdTrace,
		},
		{
			Name: "quit", Help: "leave the console",
			Handler: func(*Console, []string) error { return ErrQuit },
		},
	}
}

func cmdHelp(c *Console, args []string) error {
	if len(args) == 1 {
		cmd, ok := c.registry.Lookup(args[0])
		if !ok {
			return errors.Wrap(ErrUnknownCommand, args[0])
		}
		c.Printf("%s %s\n  %s\n", cmd.Name, cmd.Usage, cmd.Help)
		return nil
	}
	for _, name := range c.registry.Names() {
		cmd, _ := c.registry.Lookup(name)
		c.Printf("%-8s %-28s %s\n", cmd.Name, cmd.Usage, cmd.Help)
	}
	return nil
}

func cmdWait(c *Console, args []string) error {
	addr, err := c.address(args[0])
	if err != nil {
		return err
	}
	expected, err := parseU32(args[1])
	if err != nil {
		return err
	}
	mask, err := parseU32(args[2])
	if err != nil {
		return err
	}
	var cycles uint64
	if len(args) > 3 {
		if cycles, err = parseUint(args[3], 64); err != nil {
			return err
		}
	}
	var timeout time.Duration
	if len(args) > 4 {
		if timeout, err = time.ParseDuration(args[4]); err != nil {
			return errors.Wrapf(core.ErrOutOfRange, "bad timeout %q", args[4])
		}
	}
	v, err := c.sdk.Registers().Wait(addr, expected, mask, cycles, timeout)
	if err != nil {
		return err
	}
	c.Printf("%s = 0x%08x\n", c.label(addr), v)
	return nil
}

func cmdGPIO(c *Console, args []string) error {
	if len(args) == 0 {
		c.Printf("%s\n", c.gpio)
		return nil
	}
	pin, err := parseInt(args[0])
	if err != nil {
		return err
	}
	if err := core.CheckRange("pin", pin, 0, core.GPIONum-1); err != nil {
		return err
	}
	p := core.GPIOPin(pin)
	fn, err := c.gpio.GetFunction(p)
	if err != nil {
		return err
	}
	dir, err := c.gpio.GetDirection(p)
	if err != nil {
		return err
	}
	bit, err := c.gpio.GetBit(p)
	if err != nil {
		return err
	}
	c.Printf("gpio%d %s %s %s\n", pin, fn, dir, bit)
	return nil
}

func cmdTrace(c *Console, args []string) error {
	if c.trace == nil {
		return errors.New("tracing is not configured")
	}
	if len(args) == 1 {
		switch args[0] {
		case "on":
			c.trace.SetEnabled(true)
		case "off":
			c.trace.SetEnabled(false)
		case "clear":
			c.trace.Clear()
		default:
			return errors.Wrap(ErrUsage, "trace [on|off|clear]")
		}
		return nil
	}
	for _, evt := range c.trace.Events() {
		c.Printf("%10d %-9s sm%d 0x%08x 0x%08x\n",
			evt.Clock, core.EventName(evt.EventType), evt.SM, evt.Value1, evt.Value2)
	}
	return nil
}
