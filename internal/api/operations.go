package api

import "gqlchat/internal/graphql"

const messageFields = `
      id
      content
      timestamp
      sender {
        id
        username
        displayName
      }`

var (
	opUsers = graphql.Operation{
		Name: "GetUsers",
		Query: `query GetUsers {
    users {
      id
      username
      displayName
    }
  }`,
	}

	opRooms = graphql.Operation{
		Name: "GetRooms",
		Query: `query GetRooms {
    rooms {
      id
      name
    }
  }`,
	}
)

func opCreateRoom(name string) graphql.Operation {
	return graphql.Operation{
		Name: "CreateRoom",
		Query: `mutation CreateRoom($name: String!) {
    createRoom(name: $name) {
      id
      name
    }
  }`,
		Variables: map[string]any{"name": name},
	}
}

func opMessagesByRoom(roomID string) graphql.Operation {
	return graphql.Operation{
		Name: "GetMessages",
		Query: `query GetMessages($roomId: String!) {
    messagesByRoom(roomId: $roomId) {` + messageFields + `
    }
  }`,
		Variables: map[string]any{"roomId": roomID},
	}
}

func opSendMessage(senderID, roomID, content string) graphql.Operation {
	return graphql.Operation{
		Name: "SendMessage",
		Query: `mutation SendMessage($senderId: String!, $roomId: String!, $content: String!) {
    sendMessage(senderId: $senderId, roomId: $roomId, content: $content) {` + messageFields + `
    }
  }`,
		Variables: map[string]any{"senderId": senderID, "roomId": roomID, "content": content},
	}
}

func opMessageAdded(roomID string) graphql.Operation {
	return graphql.Operation{
		Name: "MessageAdded",
		Query: `subscription MessageAdded($roomId: String!) {
    messageAdded(roomId: $roomId) {` + messageFields + `
    }
  }`,
		Variables: map[string]any{"roomId": roomID},
	}
}
