// A minimal line-oriented front-end for the relay. All presentation
// lives here; the wire protocol is handled by pkg/client.
//
// Commands:
//
//	/join <group>            join (or create) a group
//	/leave <group>           leave a group
//	/msg <target> <text>     send to a user, or to #group
//	<text>                   shorthand for /msg #<default group> <text>
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aeolun/chatrelay/pkg/client"
	"github.com/aeolun/chatrelay/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "localhost:5000", "Server address")
	name := flag.String("name", "", "Username to register as")
	defaultGroup := flag.String("group", "Global", "Group for bare messages")
	flag.Parse()

	if *name == "" {
		log.Fatal("A username is required (-name)")
	}

	c, err := client.Dial(*addr, *name)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range c.Events() {
			printEvent(ev)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := dispatch(c, line, *defaultGroup); err != nil {
			fmt.Printf("! %v\n", err)
		}

		select {
		case <-done:
			// Server closed the connection
			if err := c.Err(); err != nil {
				log.Fatalf("Disconnected: %v", err)
			}
			return
		default:
		}
	}

	c.Close()
	<-done
}

func dispatch(c *client.Client, line, defaultGroup string) error {
	if !strings.HasPrefix(line, "/") {
		return c.Send(protocol.GroupSigil+defaultGroup, line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/join":
		if rest == "" {
			return fmt.Errorf("usage: /join <group>")
		}
		return c.Join(strings.TrimPrefix(rest, protocol.GroupSigil))

	case "/leave":
		if rest == "" {
			return fmt.Errorf("usage: /leave <group>")
		}
		return c.Leave(strings.TrimPrefix(rest, protocol.GroupSigil))

	case "/msg":
		target, text, ok := strings.Cut(rest, " ")
		if !ok || target == "" {
			return fmt.Errorf("usage: /msg <target> <text>")
		}
		return c.Send(target, text)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printEvent(ev interface{}) {
	switch m := ev.(type) {
	case *protocol.ChatMessage:
		fmt.Printf("[%s] %s: %s\n", m.To, m.From, m.Text)
	case *protocol.SystemMessage:
		fmt.Printf("* %s\n", m.Text)
	case *protocol.UserListMessage:
		fmt.Printf("= users: %s\n", strings.Join(m.Users, ", "))
	case *protocol.GroupListMessage:
		fmt.Printf("= groups: %s%s\n", protocol.GroupSigil, strings.Join(m.Groups, ", "+protocol.GroupSigil))
	}
}
