// Package operator implements SPEC_FULL.md's supplemental read-only
// listing endpoints: POST /operator/namespaces and POST
// /operator/pods, which let an already-authenticated caller enumerate
// targets before requesting a ticket for one of them. Unlike the ticket
// flow, these accept the kubeconfig directly in the request body rather
// than through TicketStore, since listing is not itself a privileged
// single-use action the way opening an exec session is.
package operator

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/sealos/tty-agent/internal/auth"
	"github.com/sealos/tty-agent/internal/kubeconfig"
)

// Surface exposes the read-only listing endpoints.
type Surface struct {
	logger         *logrus.Logger
	maxKubeconfigB int64
	authHandler    *auth.Handler
}

// New builds a Surface. maxKubeconfigB caps the kubeconfig field the
// same way HttpSurface's ticket issuance does. authHandler, if non-nil,
// gates the whole /operator group behind the same operator-auth session
// cookie POST /ws-ticket uses.
func New(logger *logrus.Logger, maxKubeconfigB int64, authHandler *auth.Handler) *Surface {
	return &Surface{logger: logger, maxKubeconfigB: maxKubeconfigB, authHandler: authHandler}
}

// Register attaches the listing routes under /operator.
func (s *Surface) Register(engine *gin.Engine) {
	group := engine.Group("/operator")
	if s.authHandler != nil {
		group.Use(s.authHandler.Middleware())
	}
	group.POST("/namespaces", s.handleListNamespaces)
	group.POST("/pods", s.handleListPods)
}

type listRequest struct {
	Kubeconfig string `json:"kubeconfig"`
	Namespace  string `json:"namespace"`
}

func (s *Surface) clientFor(c *gin.Context) (kubernetes.Interface, *listRequest, bool) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return nil, nil, false
	}
	if req.Kubeconfig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing \"kubeconfig\" field"})
		return nil, nil, false
	}
	if int64(len(req.Kubeconfig)) > s.maxKubeconfigB {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "kubeconfig too large."})
		return nil, nil, false
	}

	restCfg, err := kubeconfig.RESTConfig([]byte(req.Kubeconfig))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid kubeconfig"})
		return nil, nil, false
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to build kubernetes client"})
		return nil, nil, false
	}
	return clientset, &req, true
}

func (s *Surface) handleListNamespaces(c *gin.Context) {
	clientset, _, ok := s.clientFor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	namespaces, err := clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.WithError(err).Error("failed to list namespaces")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to list namespaces"})
		return
	}

	out := make([]gin.H, 0, len(namespaces.Items))
	for i := range namespaces.Items {
		ns := &namespaces.Items[i]
		out = append(out, gin.H{"name": ns.Name, "status": ns.Status.Phase})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "namespaces": out})
}

func (s *Surface) handleListPods(c *gin.Context) {
	clientset, req, ok := s.clientFor(c)
	if !ok {
		return
	}

	namespace := req.Namespace
	if namespace == "" {
		namespace = metav1.NamespaceAll
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		s.logger.WithError(err).WithField("namespace", namespace).Error("failed to list pods")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to list pods"})
		return
	}

	out := make([]gin.H, 0, len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]
		ready := false
		for _, cond := range pod.Status.Conditions {
			if cond.Type == v1.PodReady && cond.Status == v1.ConditionTrue {
				ready = true
				break
			}
		}
		out = append(out, gin.H{
			"name":       pod.Name,
			"namespace":  pod.Namespace,
			"status":     string(pod.Status.Phase),
			"ready":      ready,
			"containers": containerNames(pod),
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "pods": out})
}

func containerNames(pod *v1.Pod) []string {
	names := make([]string, len(pod.Spec.Containers))
	for i := range pod.Spec.Containers {
		names[i] = pod.Spec.Containers[i].Name
	}
	return names
}
