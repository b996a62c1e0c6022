package rpc

import (
	"net"
	"net/rpc"

	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/models"
	"github.com/tavern-games/gamesync/persistence"
	"github.com/tavern-games/gamesync/services"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server. Services are registered with the rpc
// package before Start is called.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes the directory, account lookups and the wallet that
// peer clients settle their stakes against. Methods follow the net/rpc
// signature rules: exported arguments, pointer reply, error return.
type AdminService struct {
	db     persistence.Database
	rooms  *services.RoomService
	wallet *services.WalletService
}

func NewAdminService(db persistence.Database, rooms *services.RoomService, wallet *services.WalletService) *AdminService {
	return &AdminService{db: db, rooms: rooms, wallet: wallet}
}

// Register hooks the service into the default rpc server.
func (as *AdminService) Register() error {
	return rpc.RegisterName("Admin", as)
}

type PlayerStatsArgs struct {
	PlayerID string
}

type PlayerStatsReply struct {
	Profile *models.Profile
	Stats   *models.PlayerStats
}

func (as *AdminService) GetPlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	profile, err := as.db.LoadProfile(args.PlayerID)
	if err != nil {
		return err
	}
	stats, err := as.db.GetPlayerStats(args.PlayerID)
	if err != nil {
		return err
	}
	reply.Profile = profile
	reply.Stats = stats
	return nil
}

type LookupRoomArgs struct {
	Code string
}

type LookupRoomReply struct {
	Room *models.Room
}

func (as *AdminService) LookupRoom(args *LookupRoomArgs, reply *LookupRoomReply) error {
	room, err := as.rooms.LookupRoom(args.Code)
	if err != nil {
		return err
	}
	reply.Room = room
	return nil
}

type CreateRoomArgs struct {
	GameType string
	HostID   string
	Stake    int
}

type CreateRoomReply struct {
	Code string
}

func (as *AdminService) CreateRoom(args *CreateRoomArgs, reply *CreateRoomReply) error {
	code, err := as.rooms.CreateRoom(args.GameType, args.HostID, args.Stake)
	if err != nil {
		return err
	}
	reply.Code = code
	return nil
}

type EnsureProfileArgs struct {
	PlayerID   string
	Name       string
	AvatarSeed string
}

type EnsureProfileReply struct {
	Coins int
}

func (as *AdminService) EnsureProfile(args *EnsureProfileArgs, reply *EnsureProfileReply) error {
	coins, err := as.wallet.EnsureProfile(args.PlayerID, args.Name, args.AvatarSeed)
	if err != nil {
		return err
	}
	reply.Coins = coins
	return nil
}

type BalanceDeltaArgs struct {
	PlayerID string
	Delta    int
}

type BalanceDeltaReply struct {
	Balance int
}

func (as *AdminService) RequestBalanceDelta(args *BalanceDeltaArgs, reply *BalanceDeltaReply) error {
	balance, err := as.wallet.RequestBalanceDelta(args.PlayerID, args.Delta)
	if err != nil {
		return err
	}
	reply.Balance = balance
	return nil
}

type VerifyIdentityArgs struct {
	PlayerID string
}

type VerifyIdentityReply struct {
	Valid bool
}

func (as *AdminService) VerifyIdentity(args *VerifyIdentityArgs, reply *VerifyIdentityReply) error {
	valid, err := as.wallet.VerifyIdentity(args.PlayerID)
	if err != nil {
		return err
	}
	reply.Valid = valid
	return nil
}
