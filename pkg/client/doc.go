// Package client is a Go client for the passage question answering API.
//
//	c, _ := client.New("http://localhost:8000")
//	ans, err := c.Ask(ctx, "When does the library open?")
//	if errors.Is(err, client.ErrNotReady) {
//	    // index still building
//	}
//	fmt.Println(ans.Text)
package client
