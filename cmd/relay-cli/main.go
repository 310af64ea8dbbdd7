// relay-cli is a line-oriented terminal client for the chat relay.
//
// Plain lines are broadcast. "/msg <uid> <text>" sends to one user,
// "/quit" leaves.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/relay-dev/relay/pkg/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:1967", "relay server address")
	name := flag.String("name", "", "display name (required)")
	flag.Parse()
	if *name == "" {
		fmt.Fprintln(os.Stderr, "relay-cli: -name is required")
		os.Exit(2)
	}
	if err := run(*addr, *name); err != nil {
		fmt.Fprintln(os.Stderr, "relay-cli:", err)
		os.Exit(1)
	}
}

func run(addr, name string) error {
	loggedIn := make(chan error, 1)
	c, err := client.Dial(context.Background(), addr, client.Handlers{
		OnLoggedIn: func(roster []client.User) {
			for _, u := range roster {
				fmt.Printf("* online: %s (%s)\n", u.Name, u.Uid)
			}
			loggedIn <- nil
		},
		OnLoginFailed: func(reason string) {
			loggedIn <- fmt.Errorf("login rejected: %s", reason)
		},
		OnMessage: func(sender client.User, text string) {
			fmt.Printf("<%s> %s\n", sender.Name, text)
		},
		OnUserJoined: func(u client.User) {
			fmt.Printf("* %s joined (%s)\n", u.Name, u.Uid)
		},
		OnUserLeft: func(u client.User) {
			fmt.Printf("* %s left\n", u.Name)
		},
		OnDisconnected: func(err error) {
			if err != nil {
				fmt.Printf("* disconnected: %v\n", err)
			}
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Login(name); err != nil {
		return err
	}
	select {
	case err := <-loggedIn:
		if err != nil {
			return err
		}
	case <-c.Done():
		return fmt.Errorf("connection closed before login completed")
	}
	fmt.Printf("* logged in as %s (%s)\n", name, c.Uid())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/msg "):
			uid, text, ok := strings.Cut(strings.TrimPrefix(line, "/msg "), " ")
			if !ok {
				fmt.Println("* usage: /msg <uid> <text>")
				continue
			}
			if err := c.SendTo(uid, text); err != nil {
				return err
			}
		default:
			if err := c.Send(line); err != nil {
				return err
			}
		}
		select {
		case <-c.Done():
			return fmt.Errorf("server closed the connection")
		default:
		}
	}
	return scanner.Err()
}
