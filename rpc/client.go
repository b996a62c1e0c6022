package rpc

import (
	"net/rpc"

	"github.com/tavern-games/gamesync/models"
)

// Client wraps the admin RPC endpoint for peer binaries. It implements the
// wallet collaborator interface the settlement ledger expects, so a session
// can settle stakes straight through it.
type Client struct {
	conn *rpc.Client
}

func Dial(addr string) (*Client, error) {
	conn, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) CreateRoom(gameType, hostID string, stake int) (string, error) {
	var reply CreateRoomReply
	err := c.conn.Call("Admin.CreateRoom", &CreateRoomArgs{
		GameType: gameType,
		HostID:   hostID,
		Stake:    stake,
	}, &reply)
	return reply.Code, err
}

func (c *Client) LookupRoom(code string) (*models.Room, error) {
	var reply LookupRoomReply
	if err := c.conn.Call("Admin.LookupRoom", &LookupRoomArgs{Code: code}, &reply); err != nil {
		return nil, err
	}
	return reply.Room, nil
}

func (c *Client) EnsureProfile(playerID, name, avatarSeed string) (int, error) {
	var reply EnsureProfileReply
	err := c.conn.Call("Admin.EnsureProfile", &EnsureProfileArgs{
		PlayerID:   playerID,
		Name:       name,
		AvatarSeed: avatarSeed,
	}, &reply)
	return reply.Coins, err
}

func (c *Client) RequestBalanceDelta(playerID string, delta int) (int, error) {
	var reply BalanceDeltaReply
	err := c.conn.Call("Admin.RequestBalanceDelta", &BalanceDeltaArgs{
		PlayerID: playerID,
		Delta:    delta,
	}, &reply)
	return reply.Balance, err
}

func (c *Client) VerifyIdentity(playerID string) (bool, error) {
	var reply VerifyIdentityReply
	err := c.conn.Call("Admin.VerifyIdentity", &VerifyIdentityArgs{PlayerID: playerID}, &reply)
	return reply.Valid, err
}
