package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	projectdomain "pmt/backend/internal/project/domain"
	projectservice "pmt/backend/internal/project/service"
	"pmt/backend/internal/server/interceptors"
	taskdomain "pmt/backend/internal/task/domain"
	taskservice "pmt/backend/internal/task/service"
	userservice "pmt/backend/internal/user/service"
)

// Service names of the API.
const (
	UserServiceName    = "pmt.v1.UserService"
	ProjectServiceName = "pmt.v1.ProjectService"
	TaskServiceName    = "pmt.v1.TaskService"
)

// API adapts the services to gRPC. The acting user of every protected call is the authenticated caller.
type API struct {
	users    *userservice.Service
	projects *projectservice.Service
	tasks    *taskservice.Manager
}

// NewAPI returns an API over the given services.
func NewAPI(users *userservice.Service, projects *projectservice.Service, tasks *taskservice.Manager) *API {
	return &API{users: users, projects: projects, tasks: tasks}
}

// method builds a unary MethodDesc that decodes Req and calls fn with the API. Errors are mapped by ToStatus.
func method[Req any](service, name string, fn func(a *API, ctx context.Context, req *Req) (interface{}, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s: %v", name, err)
			}
			handler := func(ctx context.Context, r interface{}) (interface{}, error) {
				resp, err := fn(srv.(*API), ctx, r.(*Req))
				if err != nil {
					return nil, ToStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		},
	}
}

func caller(ctx context.Context) (int64, error) {
	id, ok := interceptors.UserIDFrom(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return id, nil
}

// UserServiceDesc describes pmt.v1.UserService.
var UserServiceDesc = grpc.ServiceDesc{
	ServiceName: UserServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		method(UserServiceName, "Register", (*API).register),
		method(UserServiceName, "Login", (*API).login),
		method(UserServiceName, "Logout", (*API).logout),
		method(UserServiceName, "ChangePassword", (*API).changePassword),
		method(UserServiceName, "GetUser", (*API).getUser),
	},
	Metadata: "pmt/v1/user",
}

func (a *API) register(ctx context.Context, req *RegisterRequest) (interface{}, error) {
	u, err := a.users.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	return toUser(u.Summary()), nil
}

func (a *API) login(ctx context.Context, req *LoginRequest) (interface{}, error) {
	res, err := a.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: res.AccessToken, ExpiresAt: res.ExpiresAt, User: toUser(res.User)}, nil
}

func (a *API) logout(ctx context.Context, _ *Empty) (interface{}, error) {
	token, ok := interceptors.TokenFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	if err := a.users.Logout(ctx, token); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (a *API) changePassword(ctx context.Context, req *ChangePasswordRequest) (interface{}, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.users.ChangePassword(ctx, id, req.OldPassword, req.NewPassword); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (a *API) getUser(ctx context.Context, req *GetUserRequest) (interface{}, error) {
	id := req.UserID
	if id == 0 {
		var err error
		if id, err = caller(ctx); err != nil {
			return nil, err
		}
	}
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUser(u.Summary()), nil
}

// ProjectServiceDesc describes pmt.v1.ProjectService.
var ProjectServiceDesc = grpc.ServiceDesc{
	ServiceName: ProjectServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		method(ProjectServiceName, "CreateProject", (*API).createProject),
		method(ProjectServiceName, "GetProject", (*API).getProject),
		method(ProjectServiceName, "ListMyProjects", (*API).listMyProjects),
		method(ProjectServiceName, "AddMember", (*API).addMember),
		method(ProjectServiceName, "AssignRole", (*API).assignRole),
		method(ProjectServiceName, "ListMembers", (*API).listMembers),
	},
	Metadata: "pmt/v1/project",
}

func (a *API) createProject(ctx context.Context, req *CreateProjectRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	p, err := a.projects.CreateProject(ctx, projectdomain.Project{Name: req.Name, Description: req.Description, StartDate: start}, actor)
	if err != nil {
		return nil, err
	}
	return toProject(p), nil
}

func (a *API) getProject(ctx context.Context, req *ProjectRequest) (interface{}, error) {
	p, err := a.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	return toProject(p), nil
}

func (a *API) listMyProjects(ctx context.Context, _ *Empty) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := a.projects.ListProjectsForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := &ListProjectsResponse{Projects: make([]Project, 0, len(ps))}
	for _, p := range ps {
		out.Projects = append(out.Projects, toProject(p))
	}
	return out, nil
}

func (a *API) addMember(ctx context.Context, req *AddMemberRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ms, err := a.projects.AddMember(ctx, req.ProjectID, req.Email, actor)
	if err != nil {
		return nil, err
	}
	return &MembersResponse{Members: toMembers(ms)}, nil
}

func (a *API) assignRole(ctx context.Context, req *AssignRoleRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	m, err := a.projects.AssignRole(ctx, req.ProjectID, req.MemberID, req.Role, actor)
	if err != nil {
		return nil, err
	}
	return toMember(*m), nil
}

func (a *API) listMembers(ctx context.Context, req *ProjectRequest) (interface{}, error) {
	ms, err := a.projects.ListMembers(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	return &MembersResponse{Members: toMembers(ms)}, nil
}

// TaskServiceDesc describes pmt.v1.TaskService.
var TaskServiceDesc = grpc.ServiceDesc{
	ServiceName: TaskServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		method(TaskServiceName, "CreateTask", (*API).createTask),
		method(TaskServiceName, "AssignTask", (*API).assignTask),
		method(TaskServiceName, "EditTask", (*API).editTask),
		method(TaskServiceName, "ChangeStatus", (*API).changeStatus),
		method(TaskServiceName, "GetTask", (*API).getTask),
		method(TaskServiceName, "ListTasksByStatus", (*API).listTasksByStatus),
		method(TaskServiceName, "ListMyTasks", (*API).listMyTasks),
		method(TaskServiceName, "TaskHistory", (*API).taskHistory),
	},
	Metadata: "pmt/v1/task",
}

func (a *API) createTask(ctx context.Context, req *CreateTaskRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}
	completion, err := parseOptionalDate("completion_date", req.CompletionDate)
	if err != nil {
		return nil, err
	}
	v, err := a.tasks.CreateTask(ctx, taskdomain.Task{
		Name:           req.Name,
		Description:    req.Description,
		DueDate:        due,
		CompletionDate: completion,
		Priority:       taskdomain.Priority(req.Priority),
		AssigneeID:     req.AssigneeID,
	}, req.ProjectID, actor)
	if err != nil {
		return nil, err
	}
	return toTask(v), nil
}

func (a *API) assignTask(ctx context.Context, req *AssignTaskRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	v, err := a.tasks.AssignTask(ctx, req.TaskID, req.ProjectID, req.AssigneeID, actor)
	if err != nil {
		return nil, err
	}
	return toTask(v), nil
}

func (a *API) editTask(ctx context.Context, req *EditTaskRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return nil, err
	}
	completion, err := parseOptionalDate("completion_date", req.CompletionDate)
	if err != nil {
		return nil, err
	}
	v, err := a.tasks.EditTask(ctx, req.TaskID, req.ProjectID, actor, taskdomain.Fields{
		Name:           req.Name,
		Description:    req.Description,
		DueDate:        due,
		CompletionDate: completion,
		Priority:       taskdomain.Priority(req.Priority),
		Status:         taskdomain.Status(req.Status),
	})
	if err != nil {
		return nil, err
	}
	return toTask(v), nil
}

func (a *API) changeStatus(ctx context.Context, req *ChangeStatusRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	v, err := a.tasks.ChangeStatus(ctx, req.TaskID, req.ProjectID, actor, req.Status)
	if err != nil {
		return nil, err
	}
	return toTask(v), nil
}

func (a *API) getTask(ctx context.Context, req *TaskRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	v, err := a.tasks.GetTask(ctx, req.TaskID, req.ProjectID, actor)
	if err != nil {
		return nil, err
	}
	return toTask(v), nil
}

func (a *API) listTasksByStatus(ctx context.Context, req *ListTasksByStatusRequest) (interface{}, error) {
	vs, err := a.tasks.ListTasksByStatus(ctx, req.ProjectID, req.Status)
	if err != nil {
		return nil, err
	}
	return &ListTasksResponse{Tasks: toTasks(vs)}, nil
}

func (a *API) listMyTasks(ctx context.Context, _ *Empty) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := a.tasks.ListTasksForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &ListTasksResponse{Tasks: toTasks(vs)}, nil
}

func (a *API) taskHistory(ctx context.Context, req *TaskRequest) (interface{}, error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.tasks.History(ctx, req.TaskID, req.ProjectID, actor)
	if err != nil {
		return nil, err
	}
	return &HistoryResponse{Changes: toChanges(records)}, nil
}
