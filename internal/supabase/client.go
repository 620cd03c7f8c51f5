package supabase

import (
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Client wraps the hosted Supabase API used for rows that are not worth a
// direct Postgres connection.
type Client struct {
	Supabase *supabase.Client
}

func NewClient(supabaseURL, serviceKey string) (*Client, error) {
	client, err := supabase.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{Supabase: client}, nil
}
